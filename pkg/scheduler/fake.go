package scheduler

import (
	"context"
	"fmt"
)

// Submission records one Submit call made against the Fake.
type Submission struct {
	Script string
	Deps   []JobID
	ID     JobID
}

// Fake is a recording Submitter for tests: ids are sequential integers.
type Fake struct {
	Submissions []Submission
	FailWith    error
	next        int
}

func (f *Fake) Submit(_ context.Context, scriptPath string, deps []JobID) (JobID, error) {
	if f.FailWith != nil {
		return "", f.FailWith
	}
	f.next++
	id := fmt.Sprintf("%d", 1000+f.next)
	f.Submissions = append(f.Submissions, Submission{Script: scriptPath, Deps: deps, ID: id})
	return id, nil
}

// Last returns the most recent submission.
func (f *Fake) Last() Submission {
	return f.Submissions[len(f.Submissions)-1]
}
