/*
Package registry publishes the product image to Amazon ECR.

Publisher builds the image from the build context under two local tags,
<product>:<tag> and <product>:latest, exchanges the caller's AWS identity
for a registry login and pushes both tags to the stack's repository.

# Authentication

ECR returns a base64 token that decodes to "user:password". DecodeAuthToken
splits on the first colon only, so passwords containing colons survive, and
rejects tokens that do not decode to exactly two fields.

# Pushing

Images are read from the local docker daemon and written with
go-containerregistry, so no `docker login` state is left on the host. The
Builder and Pusher interfaces let callers swap the docker CLI and daemon
for other implementations.

# Tags

GitRevision supplies the default tag, the 8-character short SHA of HEAD.
*/
package registry
