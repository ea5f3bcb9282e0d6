// Package deploy implements the deployment controller: it renders the
// deployment descriptor for a new image, submits it to the cluster
// backend, polls for rollout stability and rolls back to the previously
// running image when the rollout fails or times out.
package deploy
