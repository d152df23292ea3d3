package resource

import "strconv"

// Stock is an availability figure: either a bounded number of units or
// unbounded for resources that do not manage stock. Arithmetic saturates so
// unbounded values can never overflow into a bogus bounded one.
type Stock struct {
	unbounded bool
	units     int
}

func Bounded(units int) Stock {
	if units < 0 {
		units = 0
	}
	return Stock{units: units}
}

func Unbounded() Stock {
	return Stock{unbounded: true}
}

func (s Stock) IsUnbounded() bool {
	return s.unbounded
}

// Units returns the bounded unit count. Unbounded stock has no unit count;
// callers must check IsUnbounded first, for which Units reports 0.
func (s Stock) Units() int {
	if s.unbounded {
		return 0
	}
	return s.units
}

// Add sums two stock figures. Unbounded absorbs everything.
func (s Stock) Add(o Stock) Stock {
	if s.unbounded || o.unbounded {
		return Unbounded()
	}
	return Bounded(s.units + o.units)
}

// Min returns the smaller of two stock figures, with unbounded treated as
// larger than any bounded value.
func (s Stock) Min(o Stock) Stock {
	if s.unbounded {
		return o
	}
	if o.unbounded {
		return s
	}
	if o.units < s.units {
		return o
	}
	return s
}

// Max returns the larger of two stock figures.
func (s Stock) Max(o Stock) Stock {
	if s.unbounded || o.unbounded {
		return Unbounded()
	}
	if o.units > s.units {
		return o
	}
	return s
}

// AtLeast reports whether the stock covers n units.
func (s Stock) AtLeast(n int) bool {
	return s.unbounded || s.units >= n
}

func (s Stock) String() string {
	if s.unbounded {
		return "unbounded"
	}
	return strconv.Itoa(s.units)
}

// MarshalJSON encodes bounded stock as a number and unbounded as null.
func (s Stock) MarshalJSON() ([]byte, error) {
	if s.unbounded {
		return []byte("null"), nil
	}
	return []byte(strconv.Itoa(s.units)), nil
}

// UnmarshalJSON decodes null as unbounded and a number as bounded stock.
func (s *Stock) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*s = Unbounded()
		return nil
	}
	n, err := strconv.Atoi(string(data))
	if err != nil {
		return err
	}
	*s = Bounded(n)
	return nil
}
