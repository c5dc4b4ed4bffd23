package purchase

import (
	"github.com/code-payments/flipchat-iap/iap"
)

// Result is the outcome of a single purchase attempt.
type Result interface {
	isResult()
}

type Success struct {
	Transaction iap.Transaction
}

type Unverified struct {
	Reason string
}

type UserCancelled struct{}

// Pending means the purchase awaits approval. Its resolution is delivered
// later as a transaction update.
type Pending struct{}

type Unknown struct{}

func (Success) isResult()       {}
func (Unverified) isResult()    {}
func (UserCancelled) isResult() {}
func (Pending) isResult()       {}
func (Unknown) isResult()       {}
