package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/danmuck/defectctl/internal/client"
	"github.com/danmuck/defectctl/internal/protocol"
	"github.com/spf13/cobra"
)

var errQuit = errors.New("quit")

const shellHelp = `commands:
  folder <path>                 list faces in a folder
  faces                         show the last listing
  open <face|#>                 load a face
  click <x,y> [neg]             segment from a click
  box <x0,y0,x1,y1>             segment inside a box
  add <class> <x,y> <x,y> ...   add a hand-drawn defect
  edit <#> <class> <x,y> ...    replace a defect
  del <#>                       delete a defect
  defects                       show the defect list
  pending                       show requests without a reply
  snapshot <path> [max-side]    write the face with outlines
  reconnect                     drop all state and dial again
  help | quit`

func newShellCommand(cc *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Interactive annotation session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cl, err := cc.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer cl.Close()
			sh := &shell{cl: cl, out: cmd.OutOrStdout()}
			return sh.run(cmd.Context(), cmd.InOrStdin())
		},
	}
}

type shell struct {
	cl  *client.Client
	out io.Writer
}

func (sh *shell) run(ctx context.Context, in io.Reader) error {
	fmt.Fprintln(sh.out, shellHelp)
	sc := bufio.NewScanner(in)
	for {
		fmt.Fprintf(sh.out, "%s> ", client.ViewName(sh.cl.Session().View()))
		if !sc.Scan() {
			fmt.Fprintln(sh.out)
			return sc.Err()
		}
		err := sh.exec(ctx, sc.Text())
		if errors.Is(err, errQuit) {
			return nil
		}
		if err != nil {
			fmt.Fprintf(sh.out, "error: %v\n", err)
		}
	}
}

func (sh *shell) exec(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	cmd, args := fields[0], fields[1:]
	switch cmd {
	case "help", "?":
		fmt.Fprintln(sh.out, shellHelp)
	case "quit", "exit":
		return errQuit
	case "folder":
		if len(args) != 1 {
			return fmt.Errorf("usage: folder <path>")
		}
		keys, err := listFolder(ctx, sh.cl, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(sh.out, keysTable(keys))
	case "faces":
		fmt.Fprintln(sh.out, keysTable(sh.listing()))
	case "open":
		if len(args) != 1 {
			return fmt.Errorf("usage: open <face|#>")
		}
		key, err := findKey(sh.listing(), args[0])
		if err != nil {
			return err
		}
		if _, err := sh.cl.Request(ctx, func(s *client.Session) (protocol.ClientMessage, error) { return s.SelectKey(key) }); err != nil {
			return err
		}
		view, err := activeView(sh.cl.Session(), "open "+key.Prefix)
		if err != nil {
			return err
		}
		w, h := view.Texture.Size()
		fmt.Fprintf(sh.out, "%s: %dx%d\n", key.Prefix, w, h)
	case "click":
		if len(args) < 1 || len(args) > 2 {
			return fmt.Errorf("usage: click <x,y> [neg]")
		}
		p, err := parsePoint(args[0])
		if err != nil {
			return err
		}
		positive := len(args) == 1 || args[1] != "neg"
		return sh.annotate(ctx, func(s *client.Session) (protocol.ClientMessage, error) { return s.Click(p, positive) })
	case "box":
		if len(args) != 1 {
			return fmt.Errorf("usage: box <x0,y0,x1,y1>")
		}
		a, b, err := parseBox(args[0])
		if err != nil {
			return err
		}
		return sh.annotate(ctx, func(s *client.Session) (protocol.ClientMessage, error) { return s.Box(a, b) })
	case "add":
		if len(args) < 2 {
			return fmt.Errorf("usage: add <class> <x,y> ...")
		}
		poly, err := parsePolygon(args[1:])
		if err != nil {
			return err
		}
		d := protocol.Defect{Polygon: poly, Class: args[0]}
		return sh.annotate(ctx, func(s *client.Session) (protocol.ClientMessage, error) { return s.AddDefect(d) })
	case "edit":
		if len(args) < 3 {
			return fmt.Errorf("usage: edit <#> <class> <x,y> ...")
		}
		i, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return err
		}
		poly, err := parsePolygon(args[2:])
		if err != nil {
			return err
		}
		d := protocol.Defect{Polygon: poly, Class: args[1]}
		return sh.annotate(ctx, func(s *client.Session) (protocol.ClientMessage, error) { return s.EditDefect(i, d) })
	case "del":
		if len(args) != 1 {
			return fmt.Errorf("usage: del <#>")
		}
		i, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return err
		}
		return sh.annotate(ctx, func(s *client.Session) (protocol.ClientMessage, error) { return s.DeleteDefect(i) })
	case "defects":
		view, err := activeView(sh.cl.Session(), "defects")
		if err != nil {
			return err
		}
		fmt.Fprintln(sh.out, defectsTable(view.Annotations))
	case "pending":
		rows := [][]string{}
		for _, p := range sh.cl.Session().Pending() {
			rows = append(rows, []string{
				strconv.FormatUint(p.Seq, 10),
				p.Label,
				protocol.KindName(p.ReplyKind),
				time.Since(p.SentAt).Round(time.Millisecond).String(),
			})
		}
		fmt.Fprintln(sh.out, renderTable([]column{numCol("Seq"), col("Request"), col("Awaiting"), numCol("Age")}, rows, "pending request"))
	case "snapshot":
		if len(args) < 1 || len(args) > 2 {
			return fmt.Errorf("usage: snapshot <path> [max-side]")
		}
		maxSide := 0
		if len(args) == 2 {
			n, err := strconv.Atoi(args[1])
			if err != nil {
				return err
			}
			maxSide = n
		}
		view, err := activeView(sh.cl.Session(), "snapshot")
		if err != nil {
			return err
		}
		return saveSnapshot(sh.out, view, args[0], maxSide)
	case "reconnect":
		if err := sh.cl.Reconnect(ctx); err != nil {
			return err
		}
		fmt.Fprintln(sh.out, "reconnected")
	default:
		return fmt.Errorf("unknown command %q (try help)", cmd)
	}
	return nil
}

func (sh *shell) annotate(ctx context.Context, gesture func(*client.Session) (protocol.ClientMessage, error)) error {
	reply, err := sh.cl.Request(ctx, gesture)
	if err != nil {
		return err
	}
	fmt.Fprintln(sh.out, defectsTable(reply.(protocol.ServerUpdated).Annotations))
	return nil
}

func (sh *shell) listing() []protocol.FaceKey {
	switch v := sh.cl.Session().View().(type) {
	case client.FolderListed:
		return v.Listing
	case client.AnnotationActive:
		return v.Listing
	default:
		return nil
	}
}
