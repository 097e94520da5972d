package lode

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/justapithecus/lode/lode"

	"github.com/justapithecus/sieve/pipeline"
	"github.com/justapithecus/sieve/types"
)

// ErrNoRunFound is returned when no run record matches the query.
var ErrNoRunFound = errors.New("no run records found")

// NewReadDataset creates a Lode Dataset for reading.
// Uses the same codec and layout as the write path.
func NewReadDataset(dataset string, factory lode.StoreFactory) (lode.Dataset, error) {
	ds, err := newDataset(dataset, factory)
	if err != nil {
		return nil, storageErr(OpInit, dataset, err)
	}
	return ds, nil
}

// NewReadDatasetFS creates a read Dataset with filesystem storage.
func NewReadDatasetFS(dataset, rootPath string) (lode.Dataset, error) {
	return NewReadDataset(dataset, lode.NewFSFactory(rootPath))
}

// NewReadDatasetS3 creates a read Dataset with S3 storage.
func NewReadDatasetS3(ctx context.Context, dataset string, s3cfg S3Config) (lode.Dataset, error) {
	factory, err := newS3Factory(ctx, s3cfg)
	if err != nil {
		return nil, err
	}
	return NewReadDataset(dataset, factory)
}

// QueryLatestRun finds and reads the most recent run record.
// An empty runID matches any run.
func QueryLatestRun(ctx context.Context, ds lode.Dataset, runID string) (*pipeline.RunFile, error) {
	snapshots, err := ds.Snapshots(ctx)
	if err != nil {
		return nil, storageErr(OpRead, string(ds.ID())+"/snapshots", err)
	}

	// Snapshots are ordered by creation time; walk latest first.
	for i := len(snapshots) - 1; i >= 0; i-- {
		snap := snapshots[i]
		if !snapshotMatchesFilter(snap, "record_kind", RecordKindRun) ||
			!snapshotMatchesFilter(snap, "run_id", runID) {
			continue
		}

		data, err := ds.Read(ctx, snap.ID)
		if err != nil {
			return nil, storageErr(OpRead, fmt.Sprintf("%s/snapshot/%s", ds.ID(), snap.ID), err)
		}

		// Manifest paths are a coarse pre-filter; record fields decide.
		for j := len(data) - 1; j >= 0; j-- {
			rec, ok := data[j].(map[string]any)
			if !ok || rec["record_kind"] != RecordKindRun {
				continue
			}
			if runID != "" && toString(rec["run_id"]) != runID {
				continue
			}
			return runFileFromRecord(rec)
		}
	}

	return nil, ErrNoRunFound
}

// ReadEntries returns every stored entry of a run in container order.
// Each entry is returned once even when snapshots overlap.
func ReadEntries(ctx context.Context, ds lode.Dataset, runID string) ([]*types.Entry, error) {
	snapshots, err := ds.Snapshots(ctx)
	if err != nil {
		return nil, storageErr(OpRead, string(ds.ID())+"/snapshots", err)
	}

	type key struct {
		stage string
		pos   types.Position
	}
	seen := make(map[key]struct{})
	var entries []*types.Entry

	for _, snap := range snapshots {
		if !snapshotMatchesFilter(snap, "record_kind", RecordKindEntry) ||
			!snapshotMatchesFilter(snap, "run_id", runID) {
			continue
		}
		data, err := ds.Read(ctx, snap.ID)
		if err != nil {
			return nil, storageErr(OpRead, fmt.Sprintf("%s/snapshot/%s", ds.ID(), snap.ID), err)
		}
		for _, item := range data {
			rec, ok := item.(map[string]any)
			if !ok || rec["record_kind"] != RecordKindEntry || toString(rec["run_id"]) != runID {
				continue
			}
			e, err := entryFromRecord(rec)
			if err != nil {
				return nil, err
			}
			k := key{stage: e.Stage, pos: e.Pos}
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			entries = append(entries, e)
		}
	}

	// Entries of one record keep their stage order: the sort is stable and
	// each record's entries were appended in one write.
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Pos.Less(entries[j].Pos)
	})
	return entries, nil
}

// snapshotMatchesFilter checks if a snapshot's file paths match
// the given partition key=value filter. An empty value matches everything.
func snapshotMatchesFilter(snap *lode.DatasetSnapshot, key, value string) bool {
	if value == "" {
		return true
	}
	for _, f := range snap.Manifest.Files {
		if matchesPartitionValue(f.Path, key, value) {
			return true
		}
	}
	return false
}

// matchesPartitionValue checks if a Hive-partitioned path contains an exact
// key=value segment, so run_id=run-1 never matches run_id=run-10.
func matchesPartitionValue(p, key, value string) bool {
	segment := key + "=" + value
	for _, part := range strings.Split(p, "/") {
		if part == segment {
			return true
		}
	}
	return false
}
