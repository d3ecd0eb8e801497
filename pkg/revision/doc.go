/*
Package revision creates ECS task definition revisions for a new image.

For each service type the active definition of the family
<product>-<environment>-<token> is read and copied into a registration
request. Only fields a caller may supply are copied; the ARN, revision,
status, compatibilities, required attributes and registration timestamps
are assigned by ECS. The container named after the service token gets the
new image and every other container is left untouched.

# Ledger

Before anything can fail, the ARN of the active definition is recorded in
the Ledger. Rollback reads it back to restore the service. Only the first
recording per service is kept.

In dry-run mode the new definition is built and logged but not registered,
and a placeholder unit with revision 99 is returned.
*/
package revision
