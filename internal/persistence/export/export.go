// Package export writes every online canvas to dataDir/voxels as a VXL file
// with a JSON sidecar.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/JLsquare/voxplace/internal/canvas"
	"github.com/JLsquare/voxplace/internal/persistence/vxl"
	"github.com/JLsquare/voxplace/internal/place"
)

type Meta struct {
	PlaceID    string      `json:"place_id"`
	VoxelID    string      `json:"voxel_id"`
	Name       string      `json:"name"`
	Size       canvas.Size `json:"size"`
	PaletteID  int64       `json:"palette_id"`
	Painted    int         `json:"painted"`
	File       string      `json:"file"`
	ModifiedAt string      `json:"modified_at"`
	ExportedAt string      `json:"exported_at"`
}

// ExportPlace writes dataDir/voxels/<voxel>.vxl and <voxel>.json and returns
// both paths.
func ExportPlace(dataDir string, p *place.Place, now time.Time) (vxlPath, metaPath string, err error) {
	c := p.Canvas
	dir := filepath.Join(dataDir, "voxels")
	base := strconv.FormatInt(c.ID(), 10)
	vxlPath = filepath.Join(dir, base+".vxl")
	if err := vxl.WriteFile(vxlPath, c); err != nil {
		return "", "", err
	}

	meta := Meta{
		PlaceID:    strconv.FormatInt(p.ID, 10),
		VoxelID:    base,
		Name:       c.Name(),
		Size:       c.Size(),
		PaletteID:  c.Palette().ID,
		Painted:    c.CountPainted(),
		File:       filepath.Base(vxlPath),
		ModifiedAt: c.LastModified().Format(time.RFC3339Nano),
		ExportedAt: now.UTC().Format(time.RFC3339Nano),
	}
	b, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return "", "", err
	}
	metaPath = filepath.Join(dir, base+".json")
	if err := os.WriteFile(metaPath, b, 0o644); err != nil {
		return "", "", err
	}
	return vxlPath, metaPath, nil
}

type Places interface {
	All() []*place.Place
}

// Uploader receives every written file. *r2s3.Mirror implements it.
type Uploader interface {
	Enqueue(localPath string)
}

type Exporter struct {
	dataDir  string
	places   Places
	uploader Uploader
	every    time.Duration
	logger   *log.Logger

	mu       sync.Mutex
	exported map[int64]time.Time // voxel id -> LastModified at export
}

func NewExporter(dataDir string, places Places, uploader Uploader, every time.Duration, logger *log.Logger) *Exporter {
	if every <= 0 {
		every = time.Minute
	}
	return &Exporter{
		dataDir:  dataDir,
		places:   places,
		uploader: uploader,
		every:    every,
		logger:   logger,
		exported: make(map[int64]time.Time),
	}
}

// ExportChanged writes the canvases modified since their last export and
// returns how many were written.
func (e *Exporter) ExportChanged(now time.Time) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	n := 0
	var firstErr error
	for _, p := range e.places.All() {
		mod := p.Canvas.LastModified()
		if last, ok := e.exported[p.Canvas.ID()]; ok && !mod.After(last) {
			continue
		}
		vxlPath, metaPath, err := ExportPlace(e.dataDir, p, now)
		if err != nil {
			e.printf("export place=%d err=%v", p.ID, err)
			if firstErr == nil {
				firstErr = fmt.Errorf("export place %d: %w", p.ID, err)
			}
			continue
		}
		e.exported[p.Canvas.ID()] = mod
		if e.uploader != nil {
			e.uploader.Enqueue(vxlPath)
			e.uploader.Enqueue(metaPath)
		}
		n++
	}
	return n, firstErr
}

func (e *Exporter) Run(ctx context.Context) error {
	t := time.NewTicker(e.every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-t.C:
			if n, _ := e.ExportChanged(now); n > 0 {
				e.printf("exported places=%d", n)
			}
		}
	}
}

func (e *Exporter) printf(format string, args ...any) {
	if e.logger == nil {
		return
	}
	e.logger.Printf(format, args...)
}
