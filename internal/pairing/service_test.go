package pairing

import (
	"fmt"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nextlevelbuilder/linecord/internal/store/file"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func fixedCodes(codes ...string) func() (string, error) {
	i := 0
	return func() (string, error) {
		if i >= len(codes) {
			return "", fmt.Errorf("code source exhausted")
		}
		c := codes[i]
		i++
		return c, nil
	}
}

func newService(t *testing.T, clock *fakeClock, opts ...Option) (*Service, *file.CodeFile) {
	t.Helper()
	cf := file.NewCodeFile(filepath.Join(t.TempDir(), file.CodesFileName))
	opts = append([]Option{WithClock(clock.Now)}, opts...)
	return NewService(cf, opts...), cf
}

func TestGenerateCode_SixDigits(t *testing.T) {
	for i := 0; i < 200; i++ {
		code, err := generateCode()
		require.NoError(t, err)
		require.Len(t, code, 6)
		n, err := strconv.Atoi(code)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, n, CodeMin)
		assert.LessOrEqual(t, n, CodeMax)
	}
}

func TestIssue_PersistsWithTTL(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	s, cf := newService(t, clock, WithCodeSource(fixedCodes("482913")))

	code, err := s.Issue("G1", "Family")
	require.NoError(t, err)
	assert.Equal(t, "482913", code)

	codes, err := cf.LoadCodes()
	require.NoError(t, err)
	require.Contains(t, codes, "482913")
	assert.Equal(t, "G1", codes["482913"].LineGroupID)
	assert.Equal(t, "Family", codes["482913"].LineGroupName)
	assert.True(t, clock.t.Add(300*time.Second).Equal(codes["482913"].Expiration))
}

func TestPeek_ExpiresAt300Seconds(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	s, cf := newService(t, clock, WithCodeSource(fixedCodes("111111")))

	_, err := s.Issue("G1", "Family")
	require.NoError(t, err)

	clock.Advance(299 * time.Second)
	bc, err := s.Peek("111111")
	require.NoError(t, err)
	require.NotNil(t, bc)
	assert.False(t, s.Expired(bc))

	clock.Advance(2 * time.Second)
	bc, err = s.Peek("111111")
	require.NoError(t, err)
	require.NotNil(t, bc)
	assert.True(t, s.Expired(bc))

	require.NoError(t, s.Consume("111111"))
	codes, err := cf.LoadCodes()
	require.NoError(t, err)
	assert.NotContains(t, codes, "111111")
}

func TestPeek_UnknownIsNil(t *testing.T) {
	s, _ := newService(t, &fakeClock{t: time.Unix(0, 0)})
	bc, err := s.Peek("000000")
	require.NoError(t, err)
	assert.Nil(t, bc)
}

func TestScenario_SingleUse(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	s, _ := newService(t, clock, WithCodeSource(fixedCodes("482913")))

	code, err := s.Issue("G1", "Family")
	require.NoError(t, err)

	// t=100: link succeeds.
	clock.Advance(100 * time.Second)
	bc, err := s.Peek(code)
	require.NoError(t, err)
	require.NotNil(t, bc)
	assert.False(t, s.Expired(bc))
	assert.Equal(t, "G1", bc.LineGroupID)
	require.NoError(t, s.Consume(code))

	// t=200: same code reads as invalid.
	clock.Advance(100 * time.Second)
	bc, err = s.Peek(code)
	require.NoError(t, err)
	assert.Nil(t, bc)
}

func TestIssue_RegeneratesOnPendingCollision(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	s, _ := newService(t, clock, WithCodeSource(fixedCodes("222222", "222222", "333333")))

	c1, err := s.Issue("G1", "one")
	require.NoError(t, err)
	c2, err := s.Issue("G2", "two")
	require.NoError(t, err)
	assert.Equal(t, "222222", c1)
	assert.Equal(t, "333333", c2)

	bc, err := s.Peek("222222")
	require.NoError(t, err)
	assert.Equal(t, "G1", bc.LineGroupID)
}

func TestIssue_ReusesExpiredCode(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	s, _ := newService(t, clock, WithCodeSource(fixedCodes("444444", "444444")))

	_, err := s.Issue("G1", "one")
	require.NoError(t, err)
	clock.Advance(CodeTTL)
	code, err := s.Issue("G2", "two")
	require.NoError(t, err)
	assert.Equal(t, "444444", code)

	bc, err := s.Peek(code)
	require.NoError(t, err)
	assert.Equal(t, "G2", bc.LineGroupID)
}

func TestIssue_CodeSpaceExhausted(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	same := make([]string, maxIssueAttempts+1)
	for i := range same {
		same[i] = "555555"
	}
	s, _ := newService(t, clock, WithCodeSource(fixedCodes(same...)))

	_, err := s.Issue("G1", "one")
	require.NoError(t, err)
	_, err = s.Issue("G2", "two")
	assert.ErrorIs(t, err, ErrCodeSpace)
}

func TestPruneExpired(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	s, _ := newService(t, clock, WithCodeSource(fixedCodes("100001", "100002")))

	_, err := s.Issue("G1", "one")
	require.NoError(t, err)
	clock.Advance(200 * time.Second)
	_, err = s.Issue("G2", "two")
	require.NoError(t, err)
	clock.Advance(150 * time.Second)

	n, err := s.PruneExpired()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	pending, err := s.Pending()
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "100002", pending[0].Code)
}
