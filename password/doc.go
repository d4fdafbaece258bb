// Package password hashes and verifies passwords with Argon2id.
//
// Hashes are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// Verify reads the cost parameters from the stored hash, so parameters can
// be raised at any time; [Argon2.NeedsUpgrade] tells the caller when a
// stored hash should be recomputed.
//
// The package never stores passwords and never logs them.
package password
