package cmd

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/vface/internal/config"
	"github.com/kozaktomas/vface/internal/dispatch"
	"github.com/kozaktomas/vface/internal/logger"
)

var enrollCmd = &cobra.Command{
	Use:   "enroll <directory>",
	Short: "Register every image of a directory into a group",
	Long: `Register faces in bulk. Each image file in the directory becomes one
identity of the group; the file name without extension is used as the
identity id and its metadata. Requests go through the same authentication,
encoding and audit path as the API.`,
	Args: cobra.ExactArgs(1),
	RunE: runEnroll,
}

func init() {
	rootCmd.AddCommand(enrollCmd)

	enrollCmd.Flags().String("client", "", "API client id (required)")
	enrollCmd.Flags().String("key", "", "API client secret (defaults to VFACE_KEY)")
	enrollCmd.Flags().String("group", "", "Group id to register into (required)")
	enrollCmd.Flags().Int("concurrency", 4, "Number of images encoded in parallel")
	_ = enrollCmd.MarkFlagRequired("client")
	_ = enrollCmd.MarkFlagRequired("group")
}

var enrollExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".bmp": true, ".webp": true,
}

// enrollFiles lists the image files of dir sorted by name.
func enrollFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", dir, err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !enrollExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}

// enrollIdentity derives the identity id from a file name.
func enrollIdentity(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func enrollBody(client, key, group, path string) ([]byte, error) {
	img, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	uid := enrollIdentity(path)
	return json.Marshal(map[string]any{
		"api": map[string]string{"client": client, "key": key},
		"data": map[string]string{
			"gid":  group,
			"uid":  uid,
			"info": uid,
			"img":  base64.StdEncoding.EncodeToString(img),
		},
	})
}

type enrollStats struct {
	mu       sync.Mutex
	created  int
	updated  int
	failures []string
}

func (s *enrollStats) add(path string, resp *dispatch.Response) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case !resp.Succeeded():
		s.failures = append(s.failures, fmt.Sprintf("%s: %d %s", filepath.Base(path), resp.StatusCode, resp.Msg))
	case resp.Msg == "Created":
		s.created++
	default:
		s.updated++
	}
}

func runEnroll(cmd *cobra.Command, args []string) error {
	client := mustGetString(cmd, "client")
	key := mustGetString(cmd, "key")
	if key == "" {
		key = os.Getenv("VFACE_KEY")
	}
	if key == "" {
		return fmt.Errorf("--key or VFACE_KEY is required")
	}
	group := mustGetString(cmd, "group")
	concurrency := max(mustGetInt(cmd, "concurrency"), 1)

	files, err := enrollFiles(args[0])
	if err != nil {
		return err
	}
	if len(files) == 0 {
		fmt.Println("No images found")
		return nil
	}

	cfg := config.Load()
	ctx := context.Background()
	b, err := openBackend(ctx, cfg, logger.Discard())
	if err != nil {
		return err
	}
	defer b.Close()

	bar := progressbar.NewOptions(len(files),
		progressbar.OptionSetDescription("Registering faces"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("images"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)

	stats := &enrollStats{}
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for _, path := range files {
		wg.Add(1)
		go func(p string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			defer bar.Add(1)

			body, err := enrollBody(client, key, group, p)
			if err != nil {
				stats.mu.Lock()
				stats.failures = append(stats.failures, fmt.Sprintf("%s: %v", filepath.Base(p), err))
				stats.mu.Unlock()
				return
			}
			stats.add(p, b.dispatcher.Handle(ctx, dispatch.OpRegister, body))
		}(path)
	}
	wg.Wait()

	fmt.Printf("\nCreated: %d, Updated: %d, Failed: %d\n", stats.created, stats.updated, len(stats.failures))
	for _, f := range stats.failures {
		fmt.Printf("  - %s\n", f)
	}
	if len(stats.failures) > 0 {
		return fmt.Errorf("%d of %d images failed", len(stats.failures), len(files))
	}
	return nil
}
