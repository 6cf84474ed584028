package mesh

// CubeGeometry returns an axis aligned cube centered on the origin with one quad per face, so
// every face has its own normals and uvs.
//
// Parameters:
//   - size: the edge length
//
// Returns:
//   - Geometry: 24 vertices in StandardLayout and 36 indices
func CubeGeometry(size float32) Geometry {
	h := size / 2
	faces := []struct {
		normal [3]float32
		corner [4][3]float32
	}{
		{[3]float32{0, 0, 1}, [4][3]float32{{-h, -h, h}, {h, -h, h}, {h, h, h}, {-h, h, h}}},
		{[3]float32{0, 0, -1}, [4][3]float32{{h, -h, -h}, {-h, -h, -h}, {-h, h, -h}, {h, h, -h}}},
		{[3]float32{1, 0, 0}, [4][3]float32{{h, -h, h}, {h, -h, -h}, {h, h, -h}, {h, h, h}}},
		{[3]float32{-1, 0, 0}, [4][3]float32{{-h, -h, -h}, {-h, -h, h}, {-h, h, h}, {-h, h, -h}}},
		{[3]float32{0, 1, 0}, [4][3]float32{{-h, h, h}, {h, h, h}, {h, h, -h}, {-h, h, -h}}},
		{[3]float32{0, -1, 0}, [4][3]float32{{-h, -h, -h}, {h, -h, -h}, {h, -h, h}, {-h, -h, h}}},
	}
	uvs := [4][2]float32{{0, 1}, {1, 1}, {1, 0}, {0, 0}}

	g := Geometry{Label: "Cube", Layout: StandardLayout()}
	for f, face := range faces {
		for i, p := range face.corner {
			v := Vertex{Position: p, Normal: face.normal, TexCoord: uvs[i]}
			g.Vertices = v.AppendFloats(g.Vertices)
		}
		base := uint16(f * 4)
		g.Indices16 = append(g.Indices16, base, base+1, base+2, base+2, base+3, base)
	}
	return g
}

// PlaneGeometry returns a square in the XZ plane facing +Y.
//
// Parameters:
//   - size: the edge length
//
// Returns:
//   - Geometry: 4 vertices in StandardLayout and 6 indices
func PlaneGeometry(size float32) Geometry {
	h := size / 2
	corners := [4][3]float32{{-h, 0, h}, {h, 0, h}, {h, 0, -h}, {-h, 0, -h}}
	uvs := [4][2]float32{{0, 1}, {1, 1}, {1, 0}, {0, 0}}
	g := Geometry{Label: "Plane", Layout: StandardLayout(), Indices16: []uint16{0, 1, 2, 2, 3, 0}}
	for i, p := range corners {
		v := Vertex{Position: p, Normal: [3]float32{0, 1, 0}, TexCoord: uvs[i]}
		g.Vertices = v.AppendFloats(g.Vertices)
	}
	return g
}
