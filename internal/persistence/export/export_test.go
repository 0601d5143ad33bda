package export

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/JLsquare/voxplace/internal/canvas"
	"github.com/JLsquare/voxplace/internal/persistence/vxl"
	"github.com/JLsquare/voxplace/internal/place"
)

type placeList []*place.Place

func (l placeList) All() []*place.Place { return l }

type recordingUploader struct{ paths []string }

func (u *recordingUploader) Enqueue(p string) { u.paths = append(u.paths, p) }

func testPlace(t *testing.T) *place.Place {
	t.Helper()
	c, err := canvas.New(77, "plaza", canvas.Size{X: 3, Y: 3, Z: 3}, canvas.DefaultPalette(), canvas.IndexLinear)
	if err != nil {
		t.Fatalf("canvas: %v", err)
	}
	_ = c.Set(1, 0, 1, 9)
	return place.New(7, true, 0, c)
}

func TestExportPlace_WritesVXLAndMeta(t *testing.T) {
	dir := t.TempDir()
	p := testPlace(t)

	vxlPath, metaPath, err := ExportPlace(dir, p, time.Now())
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if vxlPath != filepath.Join(dir, "voxels", "77.vxl") {
		t.Fatalf("vxl path=%s", vxlPath)
	}
	c, err := vxl.ReadFile(vxlPath, 77, canvas.IndexLinear)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if v, _ := c.Get(1, 0, 1); v != 9 {
		t.Fatalf("cell=%d want 9", v)
	}

	b, err := os.ReadFile(metaPath)
	if err != nil {
		t.Fatalf("read meta: %v", err)
	}
	var m Meta
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("meta json: %v", err)
	}
	if m.PlaceID != "7" || m.VoxelID != "77" || m.Painted != 1 || m.File != "77.vxl" {
		t.Fatalf("meta=%+v", m)
	}
}

func TestExporter_OnlyChangedCanvases(t *testing.T) {
	dir := t.TempDir()
	p := testPlace(t)
	up := &recordingUploader{}
	e := NewExporter(dir, placeList{p}, up, time.Minute, nil)

	if n, err := e.ExportChanged(time.Now()); err != nil || n != 1 {
		t.Fatalf("first export n=%d err=%v", n, err)
	}
	if len(up.paths) != 2 {
		t.Fatalf("uploads=%v", up.paths)
	}
	if n, _ := e.ExportChanged(time.Now()); n != 0 {
		t.Fatalf("unchanged canvas re-exported")
	}

	time.Sleep(2 * time.Millisecond)
	_ = p.Canvas.Set(1, 1, 1, 3)
	if n, _ := e.ExportChanged(time.Now()); n != 1 {
		t.Fatalf("changed canvas not exported")
	}
}
