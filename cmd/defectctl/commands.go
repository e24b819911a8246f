package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/danmuck/defectctl/internal/client"
	"github.com/danmuck/defectctl/internal/protocol"
	"github.com/spf13/cobra"
)

func newListCommand(cc *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "ls <folder>",
		Short: "List the faces in a server-side folder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cl, err := cc.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer cl.Close()
			keys, err := listFolder(cmd.Context(), cl, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), keysTable(keys))
			return nil
		},
	}
}

func newOpenCommand(cc *commandContext) *cobra.Command {
	var snapshot string
	var maxSide int
	cmd := &cobra.Command{
		Use:   "open <folder> <face>",
		Short: "Load one face and print its size",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cl, err := cc.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer cl.Close()
			view, err := openFace(cmd.Context(), cl, args[0], args[1])
			if err != nil {
				return err
			}
			w, h := view.Texture.Size()
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %dx%d narrow=%t\n", view.Key.Prefix, w, h, view.Key.IsNarrow)
			return saveSnapshot(cmd.OutOrStdout(), view, snapshot, maxSide)
		},
	}
	cmd.Flags().StringVar(&snapshot, "snapshot", "", "Write the face to this image file")
	cmd.Flags().IntVar(&maxSide, "max-side", 0, "Scale the snapshot to fit this many pixels")
	return cmd
}

func newSegmentCommand(cc *commandContext) *cobra.Command {
	var clicks []string
	var negative bool
	var box string
	var snapshot string
	var maxSide int
	cmd := &cobra.Command{
		Use:   "segment <folder> <face>",
		Short: "Load a face, run segmentation prompts and print the resulting defects",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(clicks) == 0 && box == "" {
				return fmt.Errorf("segment: give at least one --click or a --box")
			}
			cl, err := cc.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer cl.Close()
			if _, err := openFace(cmd.Context(), cl, args[0], args[1]); err != nil {
				return err
			}
			for _, raw := range clicks {
				p, err := parsePoint(raw)
				if err != nil {
					return err
				}
				if _, err := cl.Request(cmd.Context(), func(s *client.Session) (protocol.ClientMessage, error) {
					return s.Click(p, !negative)
				}); err != nil {
					return fmt.Errorf("click %s: %w", raw, err)
				}
			}
			if box != "" {
				a, b, err := parseBox(box)
				if err != nil {
					return err
				}
				if _, err := cl.Request(cmd.Context(), func(s *client.Session) (protocol.ClientMessage, error) {
					return s.Box(a, b)
				}); err != nil {
					return fmt.Errorf("box %s: %w", box, err)
				}
			}
			view, err := activeView(cl.Session(), "segment")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), defectsTable(view.Annotations))
			return saveSnapshot(cmd.OutOrStdout(), view, snapshot, maxSide)
		},
	}
	cmd.Flags().StringArrayVar(&clicks, "click", nil, "Click prompt x,y (repeatable)")
	cmd.Flags().BoolVar(&negative, "negative", false, "Send clicks as negative prompts")
	cmd.Flags().StringVar(&box, "box", "", "Bounding box prompt x0,y0,x1,y1")
	cmd.Flags().StringVar(&snapshot, "snapshot", "", "Write the face with defect outlines to this image file")
	cmd.Flags().IntVar(&maxSide, "max-side", 0, "Scale the snapshot to fit this many pixels")
	return cmd
}

func newHealthCommand(cc *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Query the server's /health endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cc.config()
			if err != nil {
				return err
			}
			target, err := healthURL(cfg.URL)
			if err != nil {
				return err
			}
			body, err := fetchHealth(cmd.Context(), target, cfg.Session.ConnectTimeout)
			if err != nil {
				return err
			}
			rows := [][]string{
				{"status", fmt.Sprint(body["status"])},
				{"service", fmt.Sprint(body["service"])},
				{"version", fmt.Sprint(body["version"])},
				{"uptime", fmt.Sprint(body["uptime"])},
				{"sessions", fmt.Sprint(body["sessions"])},
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]column{col("Field"), col("Value")}, rows, ""))
			return nil
		},
	}
}

func listFolder(ctx context.Context, cl *client.Client, folder string) ([]protocol.FaceKey, error) {
	reply, err := cl.Request(ctx, func(s *client.Session) (protocol.ClientMessage, error) {
		return s.RequestFolder(folder)
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", folder, err)
	}
	return reply.(protocol.FolderContents).Keys, nil
}

func openFace(ctx context.Context, cl *client.Client, folder, ref string) (client.AnnotationActive, error) {
	keys, err := listFolder(ctx, cl, folder)
	if err != nil {
		return client.AnnotationActive{}, err
	}
	key, err := findKey(keys, ref)
	if err != nil {
		return client.AnnotationActive{}, err
	}
	if _, err := cl.Request(ctx, func(s *client.Session) (protocol.ClientMessage, error) {
		return s.SelectKey(key)
	}); err != nil {
		return client.AnnotationActive{}, fmt.Errorf("open %s: %w", key.Prefix, err)
	}
	return activeView(cl.Session(), "open "+key.Prefix)
}

// activeView returns the editing view, or an error wrapping ErrNotReady when
// the session has moved elsewhere, for example to Failed.
func activeView(s *client.Session, what string) (client.AnnotationActive, error) {
	v := s.View()
	view, ok := v.(client.AnnotationActive)
	if !ok {
		return client.AnnotationActive{}, fmt.Errorf("%s: %w: session is %s", what, client.ErrNotReady, client.ViewName(v))
	}
	return view, nil
}

func saveSnapshot(out io.Writer, view client.AnnotationActive, path string, maxSide int) error {
	if path == "" {
		return nil
	}
	if err := client.SaveOverlay(path, view.Texture, view.Annotations, maxSide); err != nil {
		return fmt.Errorf("snapshot %s: %w", path, err)
	}
	fmt.Fprintf(out, "wrote %s\n", path)
	return nil
}

// healthURL maps ws://host/path to http://host/health.
func healthURL(wsURL string) (string, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return "", err
	}
	u.Scheme = strings.Replace(u.Scheme, "ws", "http", 1)
	u.Path = "/health"
	u.RawQuery = ""
	return u.String(), nil
}

func fetchHealth(ctx context.Context, target string, timeout time.Duration) (map[string]any, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("health %s: status %d", target, resp.StatusCode)
	}
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("health %s: %w", target, err)
	}
	return body, nil
}
