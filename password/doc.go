// Package password hashes and verifies account passwords with Argon2id.
//
// Hashes use the PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<key>
//
// Parameters are read back from each stored hash, so cost upgrades are
// transparent: NeedsRehash tells the caller to re-hash after the next
// successful login. Password policy (length, character classes, reuse) is not
// enforced here.
package password
