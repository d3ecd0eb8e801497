package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuemby/ecsdeploy/pkg/config"
	"github.com/cuemby/ecsdeploy/pkg/deploy"
	"github.com/cuemby/ecsdeploy/pkg/types"
)

type rootFlags struct {
	configPath     string
	region         string
	stack          string
	product        string
	service        string
	tag            string
	timeout        int
	buildOnly      bool
	updateServices bool
	dryRun         bool
	logLevel       string
	logJSON        bool
	pushgateway    string
}

func (f *rootFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVar(&f.configPath, "config", "", "Path to a YAML config file")
	flags.StringVar(&f.region, "region", config.DefaultRegion, "AWS region")
	flags.StringVar(&f.stack, "stack", config.DefaultStack, "CloudFormation stack name")
	flags.StringVar(&f.product, "product", config.DefaultProduct, "Product name used for task definition families and local image names")
	flags.StringVar(&f.service, "service", "", "Deploy only this service (web or worker); both when empty")
	flags.StringVar(&f.tag, "tag", "", "Image tag (default: short git revision, or latest with --update-services)")
	flags.IntVar(&f.timeout, "timeout", int(config.DefaultTimeout/time.Second), "Stabilization timeout in seconds")
	flags.BoolVar(&f.buildOnly, "build-only", false, "Build and push the image without updating services")
	flags.BoolVar(&f.updateServices, "update-services", false, "Update services with an existing image without building")
	flags.BoolVar(&f.dryRun, "dry-run", false, "Show what would happen without making changes")
	flags.StringVar(&f.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flags.BoolVar(&f.logJSON, "log-json", false, "Output logs in JSON format")
	flags.StringVar(&f.pushgateway, "pushgateway", "", "Prometheus Pushgateway URL for run metrics")

	cmd.MarkFlagsMutuallyExclusive("build-only", "update-services")
}

// buildSettings loads the config file and applies the flags the user set explicitly
func buildSettings(cmd *cobra.Command, f *rootFlags) (*config.Config, deploy.Options, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, deploy.Options{}, err
	}

	changed := cmd.Flags().Changed
	if changed("region") {
		cfg.Region = f.region
	}
	if changed("stack") {
		cfg.Stack = f.stack
	}
	if changed("product") {
		cfg.Product = f.product
	}
	if changed("timeout") {
		cfg.Timeout = config.Duration(time.Duration(f.timeout) * time.Second)
	}
	if changed("log-level") {
		cfg.Log.Level = f.logLevel
	}
	if changed("log-json") {
		cfg.Log.JSON = f.logJSON
	}
	if changed("pushgateway") {
		cfg.Pushgateway = f.pushgateway
	}
	if err := cfg.Validate(); err != nil {
		return nil, deploy.Options{}, fmt.Errorf("invalid configuration: %w", err)
	}

	services := types.AllServiceTypes()
	if f.service != "" {
		st, err := types.ParseServiceType(f.service)
		if err != nil {
			return nil, deploy.Options{}, err
		}
		services = []types.ServiceType{st}
	}

	opts := deploy.Options{
		Services:           services,
		Tag:                f.tag,
		Timeout:            time.Duration(cfg.Timeout),
		BuildOnly:          f.buildOnly,
		UpdateServicesOnly: f.updateServices,
		DryRun:             f.dryRun,
		Product:            cfg.Product,
		Environment:        cfg.Environment,
		Region:             cfg.Region,
	}
	return cfg, opts, nil
}
