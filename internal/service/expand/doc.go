// Package expand turns an audience group plus an email template into
// queued delivery tasks.
//
// Expansion streams group members in fixed-size pages, filters each
// candidate against the already-targeted set for the template, the
// free-mail domain skip, and the suppression index, then bulk-inserts
// accepted rows as queued tasks with the template content copied in.
// Later template edits never touch queued or sent history.
//
// The service layer contains pure business logic and depends on the
// Repository interface defined in repository.go. It never imports
// net/http or database/sql directly.
package expand
