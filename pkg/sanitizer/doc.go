// Package sanitizer normalizes user-supplied contact and slot fields before
// validation and storage.
//
// Every function is idempotent and never fails: input that cannot be
// normalized is returned as an empty string (phones, URLs) or as trimmed
// text, and the validator decides whether the result is acceptable.
//
//   - Phone numbers: E.164, parsed with Pakistan as the default region
//   - Names, locations, authorities: whitespace collapsed, case preserved
//   - Emails: trimmed and lowercased
//   - URLs: trimmed, scheme and host lowercased, tracking parameters dropped
package sanitizer
