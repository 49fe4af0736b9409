package mesh

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
)

// binary STL layout: 80-byte header, uint32 triangle count, then per
// triangle a float32 normal, three float32 vertices and a uint16
// attribute word.
const (
	binaryHeaderSize   = 84
	binaryTriangleSize = 50
)

// Load reads an STL file, binary or ASCII. The format is sniffed from
// the file size rather than the header text, since binary files may
// also begin with "solid".
func Load(path string) (*Mesh, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("mesh: %w", err)
	}
	if isBinarySTL(data) {
		return parseBinary(data)
	}
	return parseASCII(data)
}

func isBinarySTL(data []byte) bool {
	if len(data) < binaryHeaderSize {
		return false
	}
	count := binary.LittleEndian.Uint32(data[80:84])
	return len(data) == binaryHeaderSize+int(count)*binaryTriangleSize
}

func parseBinary(data []byte) (*Mesh, error) {
	count := binary.LittleEndian.Uint32(data[80:84])
	m := &Mesh{Triangles: make([]Triangle, 0, count)}
	off := binaryHeaderSize
	for i := uint32(0); i < count; i++ {
		off += 12 // skip stored normal; recomputed from winding when needed
		var t Triangle
		for j := 0; j < 3; j++ {
			t[j] = Vec3{
				X: float64(readF32(data, off)),
				Y: float64(readF32(data, off+4)),
				Z: float64(readF32(data, off+8)),
			}
			off += 12
		}
		off += 2 // attribute byte count
		m.Triangles = append(m.Triangles, t)
	}
	return m, nil
}

func readF32(data []byte, off int) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(data[off : off+4]))
}

func parseASCII(data []byte) (*Mesh, error) {
	m := &Mesh{}
	var verts []Vec3

	sc := bufio.NewScanner(strings.NewReader(string(data)))
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) != 4 || fields[0] != "vertex" {
			continue
		}
		x, errX := strconv.ParseFloat(fields[1], 64)
		y, errY := strconv.ParseFloat(fields[2], 64)
		z, errZ := strconv.ParseFloat(fields[3], 64)
		if errX != nil || errY != nil || errZ != nil {
			return nil, fmt.Errorf("mesh: malformed vertex line %q", sc.Text())
		}
		verts = append(verts, Vec3{x, y, z})
		if len(verts) == 3 {
			m.Triangles = append(m.Triangles, Triangle{verts[0], verts[1], verts[2]})
			verts = verts[:0]
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("mesh: %w", err)
	}
	if len(verts) != 0 {
		return nil, fmt.Errorf("mesh: truncated facet, %d dangling vertices", len(verts))
	}
	return m, nil
}

// SaveBinary writes the mesh as binary STL. Normals are derived from
// triangle winding.
func (m *Mesh) SaveBinary(path string) error {
	buf := make([]byte, binaryHeaderSize, binaryHeaderSize+len(m.Triangles)*binaryTriangleSize)
	binary.LittleEndian.PutUint32(buf[80:84], uint32(len(m.Triangles)))

	var scratch [binaryTriangleSize]byte
	for _, t := range m.Triangles {
		n := normal(t)
		writeF32(scratch[0:], n)
		writeF32(scratch[12:], t[0])
		writeF32(scratch[24:], t[1])
		writeF32(scratch[36:], t[2])
		scratch[48], scratch[49] = 0, 0
		buf = append(buf, scratch[:]...)
	}
	return os.WriteFile(path, buf, 0o644)
}

func normal(t Triangle) Vec3 {
	n := cross(sub(t[1], t[0]), sub(t[2], t[0]))
	l := math.Sqrt(dot(n, n))
	if l == 0 {
		return Vec3{}
	}
	return Vec3{n.X / l, n.Y / l, n.Z / l}
}

func writeF32(dst []byte, v Vec3) {
	binary.LittleEndian.PutUint32(dst[0:4], math.Float32bits(float32(v.X)))
	binary.LittleEndian.PutUint32(dst[4:8], math.Float32bits(float32(v.Y)))
	binary.LittleEndian.PutUint32(dst[8:12], math.Float32bits(float32(v.Z)))
}
