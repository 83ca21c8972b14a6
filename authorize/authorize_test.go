package authorize_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lsst-sqre/gafaelfawr/authorize"
)

func TestEvaluate(t *testing.T) {
	cases := map[string]struct {
		required []string
		satisfy  authorize.Satisfy
		held     []string
		want     bool
	}{
		"empty required always authorized":    {required: nil, satisfy: authorize.SatisfyAll, held: []string{}, want: true},
		"all satisfied":                       {required: []string{"exec:admin"}, satisfy: authorize.SatisfyAll, held: []string{"exec:admin", "read:all"}, want: true},
		"all missing one":                     {required: []string{"exec:admin", "exec:test"}, satisfy: authorize.SatisfyAll, held: []string{"exec:admin"}, want: false},
		"any satisfied by one":                {required: []string{"exec:admin", "exec:test"}, satisfy: authorize.SatisfyAny, held: []string{"exec:test"}, want: true},
		"any satisfied by none":               {required: []string{"exec:admin", "exec:test"}, satisfy: authorize.SatisfyAny, held: []string{"read:all"}, want: false},
		"default satisfy is all when omitted": {required: []string{"exec:admin"}, satisfy: "", held: []string{"exec:admin"}, want: true},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			d := authorize.Evaluate(tc.required, tc.satisfy, tc.held)
			assert.Equal(t, tc.want, d.Authorized)
		})
	}
}

func TestHeld(t *testing.T) {
	known := []string{"exec:admin", "exec:test", "read:all"}
	held := authorize.Held(known, []string{"read:all", "exec:test"})
	assert.Equal(t, []string{"exec:test", "read:all"}, held)
}

func TestHeldEmptyWhenUserHoldsNothing(t *testing.T) {
	held := authorize.Held([]string{"exec:admin"}, nil)
	assert.Empty(t, held)
}
