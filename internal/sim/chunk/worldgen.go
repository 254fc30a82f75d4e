package chunk

// HashGen is the built-in deterministic generator: a seeded integer hash per
// voxel column. It stands in for a real noise-based terrain generator, which
// plugs in through the Generator interface.
type HashGen struct {
	Seed int64
}

func (g HashGen) Generate(c *Chunk) {
	// Fill the padded buffer too, so seam sampling sees real data.
	for z := -1; z <= Depth; z++ {
		for x := -1; x <= Width; x++ {
			wx := c.Key.CX*Width + x
			wz := c.Key.CZ*Depth + z
			h := hash2(g.Seed, wx, wz)
			surface := int(h % Height / 2)
			for y := -1; y <= Height; y++ {
				var v Voxel
				if y <= surface {
					v.Attributes[0] = 1 + uint8(h>>8)%4
					v.Attributes[1] = uint8(h >> 16)
				}
				c.Set(x, y, z, v)
			}
		}
	}
}

func mix64(z uint64) uint64 {
	z += 0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

func hash2(seed int64, x, z int) uint64 {
	ux := uint64(uint32(int32(x)))
	uz := uint64(uint32(int32(z)))
	return mix64(uint64(seed) ^ (ux * 0x9e3779b97f4a7c15) ^ (uz * 0xbf58476d1ce4e5b9))
}
