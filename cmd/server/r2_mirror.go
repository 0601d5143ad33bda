package main

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/JLsquare/voxplace/internal/persistence/r2s3"
)

// buildR2Mirror returns nil when mirroring is off. A nil *r2s3.Mirror is a
// valid no-op uploader.
func buildR2Mirror(dataDir string, logger *log.Logger) (*r2s3.Mirror, error) {
	if !envBool("VOXPLACE_R2_MIRROR", false) {
		return nil, nil
	}

	endpoint := strings.TrimSpace(os.Getenv("VOXPLACE_R2_ENDPOINT"))
	bucket := strings.TrimSpace(os.Getenv("VOXPLACE_R2_BUCKET"))
	accessKeyID := strings.TrimSpace(os.Getenv("VOXPLACE_R2_ACCESS_KEY_ID"))
	secretAccessKey := strings.TrimSpace(os.Getenv("VOXPLACE_R2_SECRET_ACCESS_KEY"))
	prefix := strings.TrimSpace(os.Getenv("VOXPLACE_R2_PREFIX"))

	if endpoint == "" || bucket == "" || accessKeyID == "" || secretAccessKey == "" {
		return nil, fmt.Errorf("VOXPLACE_R2_MIRROR=true but VOXPLACE_R2_ENDPOINT/VOXPLACE_R2_BUCKET/VOXPLACE_R2_ACCESS_KEY_ID/VOXPLACE_R2_SECRET_ACCESS_KEY are not fully set")
	}

	client, err := r2s3.New(endpoint, bucket, accessKeyID, secretAccessKey)
	if err != nil {
		return nil, err
	}
	m := r2s3.NewMirror(client, r2s3.MirrorConfig{
		DataDir:     dataDir,
		Prefix:      prefix,
		Workers:     envInt("VOXPLACE_R2_UPLOAD_WORKERS", 2),
		Queue:       envInt("VOXPLACE_R2_QUEUE", 256),
		EnqueueWait: time.Duration(envInt("VOXPLACE_R2_ENQUEUE_WAIT_MS", 25)) * time.Millisecond,
	}, logger)
	logger.Printf("r2 mirror enabled bucket=%s prefix=%q", bucket, prefix)
	return m, nil
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
