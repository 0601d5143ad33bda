package main

import (
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// dbCmd runs read-only inspection queries against the server database.
func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dbPath := fs.String("db", "./data/voxplace.sqlite", "sqlite db path")
	placeID := fs.Int64("place", 0, "place_id filter (painters, cooldowns)")
	userID := fs.Int64("user", 0, "user_id filter (painters, cooldowns)")
	limit := fs.Int("limit", 20, "result limit")
	_ = fs.Parse(args)

	q := "places"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}
	if *limit <= 0 {
		*limit = 20
	}

	db, err := sql.Open("sqlite", "file:"+*dbPath+"?mode=ro")
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	switch q {
	case "places":
		rows, err := db.Query(`SELECT p.place_id, p.online, p.cooldown, p.voxel_id, v.name, v.palette_id, v.size_x, v.size_y, v.size_z, v.last_modified_at, length(v.grid)
			FROM Place p JOIN Voxel v ON v.voxel_id = p.voxel_id ORDER BY p.place_id LIMIT ?`, *limit)
		if err != nil {
			fail("query", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				PlaceID    int64  `json:"place_id"`
				Online     bool   `json:"online"`
				Cooldown   int64  `json:"cooldown"`
				VoxelID    int64  `json:"voxel_id"`
				Name       string `json:"name"`
				PaletteID  int64  `json:"palette_id"`
				SizeX      int    `json:"size_x"`
				SizeY      int    `json:"size_y"`
				SizeZ      int    `json:"size_z"`
				ModifiedAt string `json:"last_modified_at"`
				GridBytes  int    `json:"grid_bytes"`
			}
			var modified int64
			if err := rows.Scan(&r.PlaceID, &r.Online, &r.Cooldown, &r.VoxelID, &r.Name, &r.PaletteID, &r.SizeX, &r.SizeY, &r.SizeZ, &modified, &r.GridBytes); err != nil {
				fail("scan", err)
			}
			r.ModifiedAt = unixString(modified)
			printJSON(r)
		}
		if err := rows.Err(); err != nil {
			fail("rows", err)
		}

	case "painters":
		rows, err := db.Query(`SELECT place_id, user_id, x, y, z FROM PlaceUser
			WHERE (? = 0 OR place_id = ?) AND (? = 0 OR user_id = ?) ORDER BY place_id, x, y, z LIMIT ?`,
			*placeID, *placeID, *userID, *userID, *limit)
		if err != nil {
			fail("query", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				PlaceID int64 `json:"place_id"`
				UserID  int64 `json:"user_id"`
				X       int   `json:"x"`
				Y       int   `json:"y"`
				Z       int   `json:"z"`
			}
			if err := rows.Scan(&r.PlaceID, &r.UserID, &r.X, &r.Y, &r.Z); err != nil {
				fail("scan", err)
			}
			printJSON(r)
		}
		if err := rows.Err(); err != nil {
			fail("rows", err)
		}

	case "cooldowns":
		rows, err := db.Query(`SELECT place_id, user_id, cooldown FROM PlaceUserCooldown
			WHERE (? = 0 OR place_id = ?) AND (? = 0 OR user_id = ?) ORDER BY cooldown DESC LIMIT ?`,
			*placeID, *placeID, *userID, *userID, *limit)
		if err != nil {
			fail("query", err)
		}
		defer rows.Close()
		now := time.Now().Unix()
		for rows.Next() {
			var r struct {
				PlaceID   int64  `json:"place_id"`
				UserID    int64  `json:"user_id"`
				NextAt    string `json:"next_allowed_at"`
				Remaining int64  `json:"remaining_seconds"`
			}
			var next int64
			if err := rows.Scan(&r.PlaceID, &r.UserID, &next); err != nil {
				fail("scan", err)
			}
			r.NextAt = unixString(next)
			if next > now {
				r.Remaining = next - now
			}
			printJSON(r)
		}
		if err := rows.Err(); err != nil {
			fail("rows", err)
		}

	case "users":
		rows, err := db.Query(`SELECT user_id, username, is_admin, created_at FROM User ORDER BY user_id LIMIT ?`, *limit)
		if err != nil {
			fail("query", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				UserID    int64  `json:"user_id"`
				Username  string `json:"username"`
				IsAdmin   bool   `json:"is_admin"`
				CreatedAt string `json:"created_at"`
			}
			var created int64
			if err := rows.Scan(&r.UserID, &r.Username, &r.IsAdmin, &created); err != nil {
				fail("scan", err)
			}
			r.CreatedAt = unixString(created)
			printJSON(r)
		}
		if err := rows.Err(); err != nil {
			fail("rows", err)
		}

	case "palettes":
		rows, err := db.Query(`SELECT palette_id, length(colors) / 3 FROM Palette ORDER BY palette_id LIMIT ?`, *limit)
		if err != nil {
			fail("query", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				PaletteID int64 `json:"palette_id"`
				Colors    int   `json:"colors"`
			}
			if err := rows.Scan(&r.PaletteID, &r.Colors); err != nil {
				fail("scan", err)
			}
			printJSON(r)
		}
		if err := rows.Err(); err != nil {
			fail("rows", err)
		}

	default:
		fmt.Fprintln(os.Stderr, "unknown query:", q, "(want places|painters|cooldowns|users|palettes)")
		os.Exit(2)
	}
}

func unixString(sec int64) string {
	if sec <= 0 {
		return ""
	}
	return time.Unix(sec, 0).UTC().Format(time.RFC3339)
}

func printJSON(v any) {
	b, _ := json.Marshal(v)
	fmt.Println(string(b))
}
