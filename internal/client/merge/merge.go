// Package merge implements the three-way vault merge. Given the common
// ancestor revision and two divergent descendants (the local working copy and
// the latest server revision), it produces a single vault that preserves
// every non-conflicting change from both sides and resolves field-level
// conflicts by last writer wins.
//
// The merge is a pure function: it never mutates its inputs and the same
// three vaults always produce the same result regardless of map iteration
// order.
package merge

import (
	"sort"

	"github.com/dzaharov/vaultsync/internal/client/vault"
)

// Merge combines local and remote against their common ancestor.
//
// Record-level rules:
//   - a record added on one side is kept
//   - a record deleted on one side is dropped, unless the other side edited
//     it, in which case the edited version survives
//   - a record present on both sides is merged field by field
//
// Field-level rules mirror the record-level ones; when both sides edited the
// same field to different values, the later timestamp wins and ties go to
// remote.
func Merge(ancestor, local, remote *vault.Vault) *vault.Vault {
	out := vault.New()

	for _, id := range recordIDs(ancestor, local, remote) {
		arec, inAncestor := ancestor.Records[id]
		lrec, inLocal := local.Records[id]
		rrec, inRemote := remote.Records[id]

		switch {
		case inLocal && inRemote:
			if !inAncestor {
				arec = vault.Record{ID: id}
			}
			out.Records[id] = mergeRecord(id, arec, lrec, rrec)
		case inLocal:
			// Deleted remotely, or created locally.
			if inAncestor && !recordChanged(arec, lrec) {
				continue
			}
			out.Records[id] = copyRecord(lrec)
		case inRemote:
			if inAncestor && !recordChanged(arec, rrec) {
				continue
			}
			out.Records[id] = copyRecord(rrec)
		}
	}

	return out
}

func recordIDs(vaults ...*vault.Vault) []string {
	seen := make(map[string]struct{})
	for _, v := range vaults {
		for id := range v.Records {
			seen[id] = struct{}{}
		}
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func copyRecord(rec vault.Record) vault.Record {
	fields := make(map[string]vault.Field, len(rec.Fields))
	for name, f := range rec.Fields {
		fields[name] = f
	}
	return vault.Record{ID: rec.ID, Fields: fields}
}

// recordChanged reports whether x differs from the ancestor in field set or
// field values. Timestamp-only differences do not count as changes.
func recordChanged(ancestor, x vault.Record) bool {
	if len(ancestor.Fields) != len(x.Fields) {
		return true
	}
	for name, af := range ancestor.Fields {
		xf, ok := x.Fields[name]
		if !ok || xf.Value != af.Value {
			return true
		}
	}
	return false
}

func fieldNames(records ...vault.Record) []string {
	seen := make(map[string]struct{})
	for _, rec := range records {
		for name := range rec.Fields {
			seen[name] = struct{}{}
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func fieldChanged(af vault.Field, aok bool, xf vault.Field, xok bool) bool {
	if aok != xok {
		return true
	}
	return aok && af.Value != xf.Value
}

func mergeRecord(id string, ancestor, local, remote vault.Record) vault.Record {
	merged := vault.Record{ID: id, Fields: make(map[string]vault.Field)}

	for _, name := range fieldNames(ancestor, local, remote) {
		af, aok := ancestor.Fields[name]
		lf, lok := local.Fields[name]
		rf, rok := remote.Fields[name]

		localChanged := fieldChanged(af, aok, lf, lok)
		remoteChanged := fieldChanged(af, aok, rf, rok)

		switch {
		case !localChanged && !remoteChanged:
			if aok {
				merged.Fields[name] = af
			}
		case localChanged && !remoteChanged:
			if lok {
				merged.Fields[name] = lf
			}
		case remoteChanged && !localChanged:
			if rok {
				merged.Fields[name] = rf
			}
		default:
			// Both sides changed the field. A deletion loses to an edit;
			// two edits resolve by last writer wins, ties to remote.
			switch {
			case !lok && !rok:
			case !lok:
				merged.Fields[name] = rf
			case !rok:
				merged.Fields[name] = lf
			case lf.UpdatedAt.After(rf.UpdatedAt):
				merged.Fields[name] = lf
			default:
				merged.Fields[name] = rf
			}
		}
	}

	return merged
}
