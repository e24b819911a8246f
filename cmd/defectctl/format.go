package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/danmuck/defectctl/internal/protocol"
)

func keysTable(keys []protocol.FaceKey) string {
	rows := make([][]string, 0, len(keys))
	for i, k := range keys {
		rows = append(rows, []string{strconv.Itoa(i), k.Prefix, strconv.FormatBool(k.IsNarrow)})
	}
	return renderTable([]column{numCol("#"), col("Face"), col("Narrow")}, rows, "face")
}

func defectsTable(ann protocol.AnnotationData) string {
	rows := make([][]string, 0, len(ann.Polygons))
	for i, d := range ann.Polygons {
		minX, minY, maxX, maxY := bounds(d.Polygon)
		rows = append(rows, []string{
			strconv.Itoa(i),
			d.Class,
			strconv.Itoa(len(d.Polygon)),
			fmt.Sprintf("%.0f,%.0f - %.0f,%.0f", minX, minY, maxX, maxY),
		})
	}
	return renderTable(
		[]column{numCol("#"), col("Class"), numCol("Points"), col("Bounds")},
		rows,
		"defect",
	)
}

func bounds(p protocol.Polygon) (minX, minY, maxX, maxY float32) {
	if len(p) == 0 {
		return 0, 0, 0, 0
	}
	minX, minY, maxX, maxY = p[0].X, p[0].Y, p[0].X, p[0].Y
	for _, pt := range p[1:] {
		minX, maxX = min(minX, pt.X), max(maxX, pt.X)
		minY, maxY = min(minY, pt.Y), max(maxY, pt.Y)
	}
	return minX, minY, maxX, maxY
}

// parsePoint reads "x,y".
func parsePoint(raw string) (protocol.Point, error) {
	xs, ys, ok := strings.Cut(strings.TrimSpace(raw), ",")
	if !ok {
		return protocol.Point{}, fmt.Errorf("point %q: want x,y", raw)
	}
	x, err := strconv.ParseFloat(strings.TrimSpace(xs), 32)
	if err != nil {
		return protocol.Point{}, fmt.Errorf("point %q: %w", raw, err)
	}
	y, err := strconv.ParseFloat(strings.TrimSpace(ys), 32)
	if err != nil {
		return protocol.Point{}, fmt.Errorf("point %q: %w", raw, err)
	}
	return protocol.Point{X: float32(x), Y: float32(y)}, nil
}

// parseBox reads "x0,y0,x1,y1".
func parseBox(raw string) (protocol.Point, protocol.Point, error) {
	parts := strings.Split(raw, ",")
	if len(parts) != 4 {
		return protocol.Point{}, protocol.Point{}, fmt.Errorf("box %q: want x0,y0,x1,y1", raw)
	}
	a, err := parsePoint(parts[0] + "," + parts[1])
	if err != nil {
		return protocol.Point{}, protocol.Point{}, err
	}
	b, err := parsePoint(parts[2] + "," + parts[3])
	if err != nil {
		return protocol.Point{}, protocol.Point{}, err
	}
	return a, b, nil
}

func parsePolygon(args []string) (protocol.Polygon, error) {
	poly := make(protocol.Polygon, 0, len(args))
	for _, a := range args {
		p, err := parsePoint(a)
		if err != nil {
			return nil, err
		}
		poly = append(poly, p)
	}
	return poly, nil
}

// findKey resolves a face by prefix or by its index in listing.
func findKey(listing []protocol.FaceKey, ref string) (protocol.FaceKey, error) {
	for _, k := range listing {
		if k.Prefix == ref {
			return k, nil
		}
	}
	if i, err := strconv.Atoi(ref); err == nil && i >= 0 && i < len(listing) {
		return listing[i], nil
	}
	return protocol.FaceKey{}, fmt.Errorf("face %q is not in the listing", ref)
}
