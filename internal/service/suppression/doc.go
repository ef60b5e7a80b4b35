// Package suppression decides which addresses must never receive mail.
//
// An address is blocked when any membership carrying it, in any group, is
// bounced or deactivated. The block is address-wide: one hard bounce in
// one group silences the address everywhere. Expansion consults a
// point-in-time Index snapshot; the provider bounce list can be synced
// back into the member store by SyncProviderBounces.
//
// The service layer contains pure business logic and depends on the
// Repository interface defined in repository.go. It never imports
// net/http or database/sql directly.
package suppression
