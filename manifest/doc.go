// Package manifest records which field snapshots make up a saved database.
//
// A save writes every field to a new snapshot blob, then MANIFEST-<id>.json
// naming them, then CURRENT naming the manifest. Readers follow CURRENT, so
// a crash at any step leaves the previous state intact. With an
// s3.DDBCommitStore, CURRENT is advanced with a conditional write.
//
// Each field entry carries the FieldConfig its graph was built with. On
// reopen, Verify rejects registries that configure a persisted field
// differently (ErrConfigMismatch) and Install freezes the persisted values.
package manifest
