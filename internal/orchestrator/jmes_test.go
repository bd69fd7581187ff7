package orchestrator

import "math"

func (s *UnitTestSuite) TestEvalAny() {
	body := []byte(`{"meta":{"total":42,"label":"x"},"items":["a","b"],"none":null}`)

	v, err := EvalAny("meta.label", body)
	s.NoError(err)
	s.Equal("x", v)

	v, err = EvalAny("length(items)", body)
	s.NoError(err)
	s.Equal(float64(2), v)

	v, err = EvalAny("none", body)
	s.NoError(err)
	s.Nil(v)

	v, err = EvalAny("nonexistent", body)
	s.NoError(err)
	s.Nil(v)

	_, err = EvalAny("meta.", body)
	s.Error(err)

	_, err = EvalAny("total", []byte("not json"))
	s.Error(err)
}

func (s *UnitTestSuite) TestEvalCount() {
	n, ok, err := EvalCount("meta.total", []byte(`{"meta":{"total":42}}`))
	s.NoError(err)
	s.True(ok)
	s.Equal(42, n)

	n, ok, err = EvalCount("length(items)", []byte(`{"items":[1,2,3]}`))
	s.NoError(err)
	s.True(ok)
	s.Equal(3, n)

	for _, body := range []string{`{"total":-1}`, `{"total":1.5}`, `{"total":"7"}`, `{}`} {
		_, ok, err = EvalCount("total", []byte(body))
		s.NoError(err, body)
		s.False(ok, body)
	}

	n, ok, err = EvalCount("total", []byte(`{"total":1e300}`))
	s.NoError(err)
	s.True(ok)
	s.Equal(math.MaxInt, n)
}
