package filter

import (
	"errors"
)

// Options describes the record filters to build
type Options struct {
	MaxPriority string   // "" ships every priority
	Match       []string // FIELD=regex, all must match
	Exclude     []string // FIELD=regex, none may match
}

// Build compiles opts into a chain. It returns nil when no filter is
// configured.
func Build(opts Options) (*Chain, error) {
	chain := NewChain()
	var errs []error

	if opts.MaxPriority != "" {
		p, err := ParsePriority(opts.MaxPriority)
		if err != nil {
			errs = append(errs, err)
		} else {
			chain.Add(NewPriorityFilter(p))
		}
	}
	for _, s := range opts.Match {
		fp, err := ParseFieldPattern(s)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		chain.Add(NewMatchFilter(fp))
	}
	for _, s := range opts.Exclude {
		fp, err := ParseFieldPattern(s)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		chain.Add(NewExcludeFilter(fp))
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	if chain.Len() == 0 {
		return nil, nil
	}
	return chain, nil
}
