package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/JLsquare/voxplace/internal/canvas"
	persistlog "github.com/JLsquare/voxplace/internal/persistence/log"
	"github.com/JLsquare/voxplace/internal/persistence/vxl"
	"github.com/JLsquare/voxplace/internal/place"
)

// auditFiles lists the paint audit segments under dataDir in time order.
func auditFiles(dataDir string) ([]string, error) {
	dir := filepath.Join(dataDir, "audit")
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, "paints-") && strings.HasSuffix(name, ".jsonl.zst") {
			out = append(out, filepath.Join(dir, name))
		}
	}
	sort.Strings(out)
	return out, nil
}

func readPlacePaints(dataDir string, placeID int64) ([]place.PaintEvent, error) {
	files, err := auditFiles(dataDir)
	if err != nil {
		return nil, err
	}
	var out []place.PaintEvent
	for _, path := range files {
		err := persistlog.ReadPaints(path, func(ev place.PaintEvent) error {
			if placeID == 0 || ev.PlaceID == placeID {
				out = append(out, ev)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
	}
	// Segments are hourly; order within the merged stream by paint time.
	sort.SliceStable(out, func(i, j int) bool { return out[i].At.Before(out[j].At) })
	return out, nil
}

func auditCmd(args []string) {
	fs := flag.NewFlagSet("audit", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	placeID := fs.Int64("place", 0, "place id filter (optional)")
	userID := fs.Int64("user", 0, "user id filter (optional)")
	since := fs.String("since", "", "RFC3339 lower bound (optional)")
	limit := fs.Int("limit", 0, "print at most the last N events (0 = all)")
	_ = fs.Parse(args)

	var from time.Time
	if strings.TrimSpace(*since) != "" {
		t, err := time.Parse(time.RFC3339, *since)
		if err != nil {
			fail("parse -since", err)
		}
		from = t
	}
	evs, err := readPlacePaints(*dataDir, *placeID)
	if err != nil {
		fail("read audit", err)
	}
	var keep []place.PaintEvent
	for _, ev := range evs {
		if *userID != 0 && ev.UserID != *userID {
			continue
		}
		if ev.At.Before(from) {
			continue
		}
		keep = append(keep, ev)
	}
	if *limit > 0 && len(keep) > *limit {
		keep = keep[len(keep)-*limit:]
	}
	enc := json.NewEncoder(os.Stdout)
	for _, ev := range keep {
		_ = enc.Encode(ev)
	}
}

type cellFix struct {
	X, Y, Z int
	Color   uint8
}

// planRollback reverts every cell inside [min,max] whose latest paint is at
// or after since (and by userID, when non-zero) to the color it had before
// since. Cells with no earlier paint go back to empty. evs must be in paint
// order.
func planRollback(evs []place.PaintEvent, userID int64, since time.Time, min, max [3]int) []cellFix {
	type cellState struct {
		before uint8
		last   place.PaintEvent
	}
	cells := make(map[[3]int]*cellState)
	var order [][3]int
	for _, ev := range evs {
		pos := [3]int{ev.X, ev.Y, ev.Z}
		if !withinAABB(pos, min, max) {
			continue
		}
		st := cells[pos]
		if st == nil {
			st = &cellState{}
			cells[pos] = st
			order = append(order, pos)
		}
		if ev.At.Before(since) {
			st.before = ev.Color
		}
		st.last = ev
	}
	var out []cellFix
	for _, pos := range order {
		st := cells[pos]
		if st.last.At.Before(since) {
			continue
		}
		if userID != 0 && st.last.UserID != userID {
			continue
		}
		out = append(out, cellFix{X: pos[0], Y: pos[1], Z: pos[2], Color: st.before})
	}
	return out
}

// rollbackCmd rewrites the stored grid of one place. Run it with the server
// stopped; a running server would overwrite the result on its next flush.
func rollbackCmd(args []string) {
	fs := flag.NewFlagSet("rollback", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	dbPath := fs.String("db", "", "sqlite db path (default: <data>/voxplace.sqlite)")
	placeID := fs.Int64("place", 0, "place id (required)")
	userID := fs.Int64("user", 0, "only revert cells last painted by this user (optional)")
	since := fs.String("since", "", "revert paints at or after this RFC3339 time (required)")
	aabb := fs.String("aabb", "", "AABB filter: x1,y1,z1:x2,y2,z2 (default: whole canvas)")
	mode := fs.String("index_mode", "linear", "grid index mode: linear or legacy")
	dryRun := fs.Bool("dry_run", false, "print the plan without writing")
	_ = fs.Parse(args)

	if *placeID == 0 || strings.TrimSpace(*since) == "" {
		fmt.Fprintln(os.Stderr, "missing -place or -since")
		os.Exit(2)
	}
	from, err := time.Parse(time.RFC3339, *since)
	if err != nil {
		fail("parse -since", err)
	}
	im, err := canvas.ParseIndexMode(*mode)
	if err != nil {
		fail("index mode", err)
	}
	path := strings.TrimSpace(*dbPath)
	if path == "" {
		path = filepath.Join(*dataDir, "voxplace.sqlite")
	}

	st := openStore(path)
	defer st.Close()
	ctx := context.Background()

	row, err := st.Place(ctx, *placeID)
	if err != nil {
		fail("load place", err)
	}
	v, err := st.LoadVoxel(ctx, row.VoxelID)
	if err != nil {
		fail("load voxel", err)
	}
	min, max := [3]int{0, 0, 0}, [3]int{v.Size.X - 1, v.Size.Y - 1, v.Size.Z - 1}
	if strings.TrimSpace(*aabb) != "" {
		if min, max, err = parseAABB(*aabb); err != nil {
			fail("parse -aabb", err)
		}
	}

	evs, err := readPlacePaints(*dataDir, *placeID)
	if err != nil {
		fail("read audit", err)
	}
	fixes := planRollback(evs, *userID, from, min, max)
	if *dryRun {
		for _, f := range fixes {
			fmt.Printf("(%d,%d,%d) -> %d\n", f.X, f.Y, f.Z, f.Color)
		}
		fmt.Printf("rollback dry run: place=%d events=%d cells=%d\n", *placeID, len(evs), len(fixes))
		return
	}

	grid, err := vxl.DecompressGrid(v.Grid, v.Size.Volume())
	if err != nil {
		fail("decode grid", err)
	}
	c, err := canvas.FromGrid(v.VoxelID, v.Name, v.Size, canvas.Palette{}, im, grid)
	if err != nil {
		fail("decode grid", err)
	}
	applied, skipped := 0, 0
	for _, f := range fixes {
		if err := c.Set(f.X, f.Y, f.Z, f.Color); err != nil {
			if errors.Is(err, canvas.ErrInvalidCoordinate) {
				skipped++
				continue
			}
			fail("apply", err)
		}
		applied++
	}
	blob, err := vxl.CompressGrid(c.Snapshot())
	if err != nil {
		fail("compress grid", err)
	}
	if err := st.SaveVoxelGrid(ctx, v.VoxelID, blob, time.Now()); err != nil {
		fail("save grid", err)
	}
	fmt.Printf("rollback ok: place=%d since=%s aabb=%v:%v events=%d applied=%d skipped=%d\n",
		*placeID, from.Format(time.RFC3339), min, max, len(evs), applied, skipped)
}

func withinAABB(pos [3]int, min, max [3]int) bool {
	return pos[0] >= min[0] && pos[0] <= max[0] &&
		pos[1] >= min[1] && pos[1] <= max[1] &&
		pos[2] >= min[2] && pos[2] <= max[2]
}

func parseAABB(s string) (min, max [3]int, err error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return min, max, fmt.Errorf("expected x1,y1,z1:x2,y2,z2")
	}
	a, err := parseVec3(parts[0])
	if err != nil {
		return min, max, err
	}
	b, err := parseVec3(parts[1])
	if err != nil {
		return min, max, err
	}
	for i := 0; i < 3; i++ {
		min[i], max[i] = a[i], b[i]
		if a[i] > b[i] {
			min[i], max[i] = b[i], a[i]
		}
	}
	return min, max, nil
}

func parseVec3(s string) ([3]int, error) {
	var v [3]int
	parts := strings.Split(strings.TrimSpace(s), ",")
	if len(parts) != 3 {
		return v, fmt.Errorf("expected x,y,z")
	}
	for i := 0; i < 3; i++ {
		n, err := strconv.Atoi(strings.TrimSpace(parts[i]))
		if err != nil {
			return v, err
		}
		v[i] = n
	}
	return v, nil
}
