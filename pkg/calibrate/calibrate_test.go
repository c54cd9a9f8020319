package calibrate

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/srediag/plugin-ctc/internal/cpu"
)

type CalibrateTestSuite struct {
	suite.Suite
	ctx context.Context
}

func (s *CalibrateTestSuite) SetupTest() {
	s.ctx = context.Background()
}

func (s *CalibrateTestSuite) TearDownTest() {
	s.Require().NoError(Release(s.ctx))
}

func (s *CalibrateTestSuite) TestAlignmentInvariant() {
	for _, lineSize := range []uint64{32, 64, 128} {
		for _, addr := range []uintptr{0x1000, 0x1001, 0x7fff_1234_567f, 0x40, 0x3f + 0x40, 1} {
			r, err := Initialize(s.ctx, Options{Address: addr, LineSize: lineSize})
			s.Require().NoError(err)
			s.Zero(uint64(r.Base())%lineSize, "addr=%#x line=%d", addr, lineSize)
			s.LessOrEqual(r.Base(), addr)
			s.Less(uint64(addr-r.Base()), lineSize)
			s.Equal("address", r.Source())
		}
	}
}

func (s *CalibrateTestSuite) TestIdempotent() {
	opts := Options{Address: 0xdead_beef, LineSize: 64}
	a, err := Initialize(s.ctx, opts)
	s.Require().NoError(err)
	b, err := Initialize(s.ctx, opts)
	s.Require().NoError(err)
	s.Equal(a.Base(), b.Base())
	s.Equal(a.LineSize(), b.LineSize())
	s.Equal(uintptr(0xdead_bec0), a.Base())
}

func (s *CalibrateTestSuite) TestDetectedLineSize() {
	if !cpu.Supported() {
		_, err := Initialize(s.ctx, Options{Address: 0x1000})
		s.ErrorIs(err, ErrLineSizeUnknown)
		return
	}
	r, err := Initialize(s.ctx, Options{Address: 0x1234})
	s.Require().NoError(err)
	s.Equal(cpu.LineSize(), r.LineSize())
}

func (s *CalibrateTestSuite) TestInvalidLineSize() {
	_, err := Initialize(s.ctx, Options{Address: 0x1000, LineSize: 48})
	s.ErrorIs(err, ErrInvalidLineSize)
}

func (s *CalibrateTestSuite) TestLines() {
	r, err := Initialize(s.ctx, Options{Address: 0x10000, LineSize: 64})
	s.Require().NoError(err)
	s.Equal(uintptr(0x10000), r.Line(0))
	s.Equal(uintptr(0x10000+63*64), r.Line(Lines-1))
	s.Equal(uint64(Lines*64), r.Span())
}

func (s *CalibrateTestSuite) TestLandmark() {
	if runtime.GOOS == "windows" {
		s.T().Skip("landmarks are loaded modules on windows")
	}
	path := filepath.Join(s.T().TempDir(), "libfake.so")
	s.Require().NoError(os.WriteFile(path, make([]byte, 16<<10), 0o600))

	a, err := Initialize(s.ctx, Options{Landmark: path, LineSize: 64})
	s.Require().NoError(err)
	b, err := Initialize(s.ctx, Options{Landmark: path, LineSize: 64})
	s.Require().NoError(err)

	s.Equal(path, a.Source())
	s.Equal(a.Base(), b.Base(), "landmark must be mapped once")
	s.Zero(uint64(a.Base()) % 64)
}

func (s *CalibrateTestSuite) TestLandmarkTooSmall() {
	if runtime.GOOS == "windows" {
		s.T().Skip("landmarks are loaded modules on windows")
	}
	path := filepath.Join(s.T().TempDir(), "tiny.so")
	s.Require().NoError(os.WriteFile(path, make([]byte, 100), 0o600))
	_, err := Initialize(s.ctx, Options{Landmark: path, LineSize: 64})
	s.Error(err)
}

func (s *CalibrateTestSuite) TestDescribe() {
	info, err := Describe(s.ctx)
	if err != nil {
		s.T().Skipf("cpu info unavailable: %v", err)
	}
	s.Equal(cpu.LineSize(), info.LineSize)
	s.Equal(cpu.Supported(), info.Timing)
}

func TestCalibrateTestSuite(t *testing.T) {
	suite.Run(t, new(CalibrateTestSuite))
}
