package flows

// Deps bundles the per-operation dependency sets. Build assembles it once;
// the Engine passes the matching field to each Run* function.
type Deps struct {
	Issue    IssueDeps
	Classify ClassifyDeps
	Refresh  RefreshDeps
	Login    LoginDeps
	Revoke   RevokeDeps
}
