package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/JLsquare/voxplace/internal/auth"
	"github.com/JLsquare/voxplace/internal/canvas"
	"github.com/JLsquare/voxplace/internal/config"
	"github.com/JLsquare/voxplace/internal/persistence/export"
	"github.com/JLsquare/voxplace/internal/persistence/store"
	"github.com/JLsquare/voxplace/internal/persistence/vxl"
	"github.com/JLsquare/voxplace/internal/registry"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "user":
			userCmd(os.Args[2:])
			return
		case "token":
			tokenCmd(os.Args[2:])
			return
		case "export":
			exportCmd(os.Args[2:])
			return
		case "import":
			importCmd(os.Args[2:])
			return
		case "audit":
			auditCmd(os.Args[2:])
			return
		case "rollback":
			rollbackCmd(os.Args[2:])
			return
		case "db":
			dbCmd(os.Args[2:])
			return
		case "state":
			stateCmd(os.Args[2:])
			return
		case "online":
			onlineCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

func openStore(path string) *store.SQLite {
	st, err := store.Open(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	return st
}

func fail(what string, err error) {
	fmt.Fprintf(os.Stderr, "%s: %v\n", what, err)
	os.Exit(1)
}

func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dbPath := fs.String("db", "./data/voxplace.sqlite", "sqlite db path")
	_ = fs.Parse(args)

	st := openStore(*dbPath)
	defer st.Close()
	ctx := context.Background()
	rows, err := st.ListPlaces(ctx)
	if err != nil {
		fail("list places", err)
	}
	for _, r := range rows {
		v, err := st.LoadVoxel(ctx, r.VoxelID)
		if err != nil {
			fmt.Printf("%d\tvoxel=%d\terr=%v\n", r.PlaceID, r.VoxelID, err)
			continue
		}
		fmt.Printf("%d\t%s\t%dx%dx%d\tonline=%t\tcooldown=%s\tmodified=%s\n",
			r.PlaceID, v.Name, v.Size.X, v.Size.Y, v.Size.Z, r.Online, r.Cooldown, v.LastModifiedAt.Format(time.RFC3339))
	}
}

func userCmd(args []string) {
	fs := flag.NewFlagSet("user", flag.ExitOnError)
	dbPath := fs.String("db", "./data/voxplace.sqlite", "sqlite db path")
	id := fs.Int64("id", 0, "user id (required)")
	name := fs.String("name", "", "username (required)")
	admin := fs.Bool("admin", false, "grant admin rights")
	_ = fs.Parse(args)

	if *id <= 0 || strings.TrimSpace(*name) == "" {
		fmt.Fprintln(os.Stderr, "missing -id or -name")
		os.Exit(2)
	}
	st := openStore(*dbPath)
	defer st.Close()
	if err := st.UpsertUser(context.Background(), store.User{UserID: *id, Username: strings.TrimSpace(*name), IsAdmin: *admin}); err != nil {
		fail("upsert user", err)
	}
	fmt.Printf("user %d saved (admin=%t)\n", *id, *admin)
}

func tokenCmd(args []string) {
	fs := flag.NewFlagSet("token", flag.ExitOnError)
	id := fs.Int64("id", 0, "user id (required)")
	cfgPath := fs.String("config", "./configs/voxplace.yaml", "server config; token_ttl_hours is the default lifetime")
	ttl := fs.Duration("ttl", 0, "token lifetime (default: token_ttl_hours from -config)")
	secret := fs.String("secret", "", "signing secret (or set VOXPLACE_AUTH_SECRET)")
	_ = fs.Parse(args)

	if *id <= 0 {
		fmt.Fprintln(os.Stderr, "missing -id")
		os.Exit(2)
	}
	key := strings.TrimSpace(*secret)
	if key == "" {
		key = strings.TrimSpace(os.Getenv("VOXPLACE_AUTH_SECRET"))
	}
	signer, err := auth.NewSigner(key)
	if err != nil {
		fail("signer", err)
	}
	lifetime := *ttl
	if lifetime <= 0 {
		cfg, err := loadConfig(*cfgPath)
		if err != nil {
			fail("load config", err)
		}
		lifetime = cfg.TokenTTL()
	}
	fmt.Println(signer.Issue(*id, lifetime))
}

// loadConfig reads the server config, falling back to the defaults when the
// file does not exist.
func loadConfig(path string) (config.Config, error) {
	path = strings.TrimSpace(path)
	if path != "" {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			path = ""
		}
	}
	return config.Load(path)
}

// exportCmd writes VXL files straight from the database. It works while the
// server is stopped or running; a running server's unflushed paints are not
// included.
func exportCmd(args []string) {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	dbPath := fs.String("db", "./data/voxplace.sqlite", "sqlite db path")
	dataDir := fs.String("data", "./data", "output data directory (files go to <data>/voxels)")
	placeID := fs.Int64("place", 0, "place id (default: every online place)")
	mode := fs.String("index_mode", "linear", "grid index mode: linear or legacy")
	_ = fs.Parse(args)

	im, err := canvas.ParseIndexMode(*mode)
	if err != nil {
		fail("index mode", err)
	}
	st := openStore(*dbPath)
	defer st.Close()
	ctx := context.Background()

	reg, err := registry.Boot(ctx, st, im, nil)
	if err != nil {
		fail("load places", err)
	}
	if *placeID != 0 {
		if _, err := reg.Get(*placeID); err != nil {
			fail("place must be online to export", err)
		}
	}
	n := 0
	for _, p := range reg.All() {
		if *placeID != 0 && p.ID != *placeID {
			continue
		}
		vxlPath, _, err := export.ExportPlace(*dataDir, p, time.Now())
		if err != nil {
			fail("export place "+strconv.FormatInt(p.ID, 10), err)
		}
		fmt.Println(vxlPath)
		n++
	}
	fmt.Fprintf(os.Stderr, "exported %d place(s)\n", n)
}

func importCmd(args []string) {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	dbPath := fs.String("db", "./data/voxplace.sqlite", "sqlite db path")
	in := fs.String("in", "", "vxl file to import (required)")
	placeID := fs.Int64("place", 0, "new place id (default: voxel id)")
	voxelID := fs.Int64("voxel", 0, "new voxel id (default: current unix nanos)")
	cooldown := fs.Duration("cooldown", -1, "per-user cooldown (default: default_cooldown_seconds from -config)")
	cfgPath := fs.String("config", "./configs/voxplace.yaml", "server config")
	mode := fs.String("index_mode", "linear", "grid index mode of the file: linear or legacy")
	_ = fs.Parse(args)

	if strings.TrimSpace(*in) == "" {
		fmt.Fprintln(os.Stderr, "missing -in")
		os.Exit(2)
	}
	im, err := canvas.ParseIndexMode(*mode)
	if err != nil {
		fail("index mode", err)
	}
	if *voxelID == 0 {
		*voxelID = time.Now().UnixNano() >> 11
	}
	if *placeID == 0 {
		*placeID = *voxelID
	}
	if *cooldown < 0 {
		cfg, err := loadConfig(*cfgPath)
		if err != nil {
			fail("load config", err)
		}
		*cooldown = cfg.DefaultCooldown()
	}
	c, err := vxl.ReadFile(*in, *voxelID, im)
	if err != nil {
		fail("read vxl", err)
	}
	blob, err := vxl.CompressGrid(c.Snapshot())
	if err != nil {
		fail("compress grid", err)
	}

	st := openStore(*dbPath)
	defer st.Close()
	ctx := context.Background()

	// The file carries raw colors; store them as a palette of their own
	// unless they match the default.
	pal := canvas.Palette{ID: *voxelID, Colors: c.Palette().Colors}
	if def := canvas.DefaultPalette(); sameColors(def.Colors, pal.Colors) {
		pal = def
		if err := st.EnsurePalette(ctx, def); err != nil {
			fail("save palette", err)
		}
	} else if err := st.SavePalette(ctx, pal); err != nil {
		fail("save palette", err)
	}

	now := time.Now()
	err = st.CreatePlace(ctx,
		store.PlaceRow{PlaceID: *placeID, Online: true, Cooldown: *cooldown, VoxelID: *voxelID},
		store.VoxelRow{VoxelID: *voxelID, Name: c.Name(), PaletteID: pal.ID, Size: c.Size(), CreatedAt: now, LastModifiedAt: now, Grid: blob})
	if err != nil {
		fail("create place", err)
	}
	sz := c.Size()
	fmt.Printf("imported place=%d voxel=%d name=%q size=%dx%dx%d painted=%d\n", *placeID, *voxelID, c.Name(), sz.X, sz.Y, sz.Z, c.CountPainted())
}

func sameColors(a, b []canvas.Color) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
