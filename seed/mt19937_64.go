package seed

// mt19937_64 is a direct port of the reference MT19937-64 generator
// (Matsumoto & Nishimura). spec.md §3 fixes the host PRNG to "the
// standard Mersenne-style host generator"; Go's math/rand is not a
// Mersenne Twister, so determinism of the statistics table (spec.md §8)
// requires this generator rather than a stdlib substitute.
const (
	nn       = 312
	mm       = 156
	matrixA  = 0xB5026F5AA96619E9
	upperMsk = 0xFFFFFFFF80000000
	lowerMsk = 0x7FFFFFFF
)

type mt19937_64 struct {
	state [nn]uint64
	index int
}

func newMT19937_64(seed uint64) *mt19937_64 {
	m := &mt19937_64{}
	m.state[0] = seed
	for i := 1; i < nn; i++ {
		m.state[i] = 6364136223846793005*(m.state[i-1]^(m.state[i-1]>>62)) + uint64(i)
	}
	m.index = nn
	return m
}

func (m *mt19937_64) next() uint64 {
	if m.index >= nn {
		m.generate()
	}

	x := m.state[m.index]
	x ^= (x >> 29) & 0x5555555555555555
	x ^= (x << 17) & 0x71D67FFFEDA60000
	x ^= (x << 37) & 0xFFF7EEE000000000
	x ^= x >> 43

	m.index++
	return x
}

func (m *mt19937_64) generate() {
	mag01 := [2]uint64{0, matrixA}

	for i := 0; i < nn-mm; i++ {
		x := (m.state[i] & upperMsk) | (m.state[i+1] & lowerMsk)
		m.state[i] = m.state[i+mm] ^ (x >> 1) ^ mag01[x&1]
	}
	for i := nn - mm; i < nn-1; i++ {
		x := (m.state[i] & upperMsk) | (m.state[i+1] & lowerMsk)
		m.state[i] = m.state[i+(mm-nn)] ^ (x >> 1) ^ mag01[x&1]
	}
	x := (m.state[nn-1] & upperMsk) | (m.state[0] & lowerMsk)
	m.state[nn-1] = m.state[mm-1] ^ (x >> 1) ^ mag01[x&1]

	m.index = 0
}

// nextDouble returns a pseudo-random float64 in [0, 1), matching the
// reference implementation's 53-bit construction.
func (m *mt19937_64) nextDouble() float64 {
	return float64(m.next()>>11) * (1.0 / 9007199254740992.0)
}
