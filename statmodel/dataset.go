package statmodel

import (
	"fmt"
	"sync"

	"github.com/kshedden/dstream/dstream"
)

// Dataset assigns model roles to the variables of a dstream: an
// outcome, covariates (X) and instruments (Z).  The data are read one
// chunk at a time with Scan.  Passes over the stream are serialized,
// so a Dataset can be shared between goroutines as long as the
// underlying stream is not read elsewhere at the same time.
type Dataset struct {
	data dstream.Dstream

	// Position of the outcome variable
	ypos int

	// Positions of the covariates
	xpos []int

	// Positions of the instruments, equal to xpos unless
	// instruments are set explicitly.
	zpos []int

	mu sync.Mutex
}

// NewDataset creates a Dataset from the given stream.  The outcome is
// the variable named yname, the covariates are the variables named in
// xnames.  The instruments default to the covariates, use Instruments
// to set them explicitly.  All variables with a role must hold
// float64 values.
func NewDataset(data dstream.Dstream, yname string, xnames []string) (*Dataset, error) {

	ds := &Dataset{data: data}

	var err error
	ds.ypos, err = ds.find(yname)
	if err != nil {
		return nil, err
	}

	ds.xpos, err = ds.findAll(xnames)
	if err != nil {
		return nil, err
	}
	ds.zpos = ds.xpos

	return ds, nil
}

// Instruments sets the instrument variables by name.
func (ds *Dataset) Instruments(znames ...string) (*Dataset, error) {
	zpos, err := ds.findAll(znames)
	if err != nil {
		return nil, err
	}
	ds.zpos = zpos
	return ds, nil
}

// Pos returns the position of the named variable in the stream.
func (ds *Dataset) Pos(name string) (int, error) {
	return ds.find(name)
}

func (ds *Dataset) find(name string) (int, error) {
	for k, na := range ds.data.Names() {
		if na == name {
			return k, nil
		}
	}
	return -1, fmt.Errorf("statmodel: variable '%s' not found", name)
}

func (ds *Dataset) findAll(names []string) ([]int, error) {
	pos := make([]int, len(names))
	for j, na := range names {
		k, err := ds.find(na)
		if err != nil {
			return nil, err
		}
		pos[j] = k
	}
	return pos, nil
}

// Data returns the underlying stream.
func (ds *Dataset) Data() dstream.Dstream {
	return ds.data
}

// NumObs returns the number of observations.
func (ds *Dataset) NumObs() int {
	return ds.data.NumObs()
}

// Names returns the names of all variables in the stream.
func (ds *Dataset) Names() []string {
	return ds.data.Names()
}

// YName returns the name of the outcome variable.
func (ds *Dataset) YName() string {
	return ds.data.Names()[ds.ypos]
}

// Xpos returns the stream positions of the covariates.
func (ds *Dataset) Xpos() []int {
	return ds.xpos
}

// Zpos returns the stream positions of the instruments.
func (ds *Dataset) Zpos() []int {
	return ds.zpos
}

// XNames returns the covariate names.
func (ds *Dataset) XNames() []string {
	return ds.names(ds.xpos)
}

// ZNames returns the instrument names.
func (ds *Dataset) ZNames() []string {
	return ds.names(ds.zpos)
}

func (ds *Dataset) names(pos []int) []string {
	vn := ds.data.Names()
	na := make([]string, len(pos))
	for j, k := range pos {
		na[j] = vn[k]
	}
	return na
}

// Scan resets the stream and calls f with each chunk in turn, stopping
// at the first error.  The chunk is only valid during the call.
func (ds *Dataset) Scan(f func(*Chunk) error) error {

	ds.mu.Lock()
	defer ds.mu.Unlock()

	ds.data.Reset()
	var off int
	for ds.data.Next() {
		c := &Chunk{
			ds:     ds,
			Offset: off,
			n:      len(ds.data.GetPos(ds.ypos).([]Dtype)),
		}
		if err := f(c); err != nil {
			return err
		}
		off += c.n
	}

	return nil
}

// Chunk is the current chunk of a Dataset during a Scan.
type Chunk struct {
	ds *Dataset

	// Position of the first observation of the chunk in the data set
	Offset int

	n int
}

// Len returns the number of observations in the chunk.
func (c *Chunk) Len() int {
	return c.n
}

// Column returns the variable at stream position k.
func (c *Chunk) Column(k int) []Dtype {
	return c.ds.data.GetPos(k).([]Dtype)
}

// Y returns the outcome.
func (c *Chunk) Y() []Dtype {
	return c.Column(c.ds.ypos)
}

// X returns the covariates.
func (c *Chunk) X() [][]Dtype {
	return c.cols(c.ds.xpos)
}

// Z returns the instruments.
func (c *Chunk) Z() [][]Dtype {
	return c.cols(c.ds.zpos)
}

func (c *Chunk) cols(pos []int) [][]Dtype {
	x := make([][]Dtype, len(pos))
	for j, k := range pos {
		x[j] = c.Column(k)
	}
	return x
}
