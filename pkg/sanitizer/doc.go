// Package sanitizer normalizes customer input before validation and storage.
//
// Every function is idempotent. Input that cannot be normalized is returned
// trimmed but otherwise unchanged, so the validator downstream rejects it
// instead of it being silently dropped.
//
//   - Emails: trimmed and lowercased
//   - Phone numbers: E.164 (+[country][number]) via libphonenumber
//   - Names and free text: whitespace collapsed, control characters removed
package sanitizer
