package memory

import (
	"github.com/expenso/policy-engine/repositories"
)

var (
	_ repositories.PolicyRepository = (*PolicyRepository)(nil)
	_ repositories.LedgerRepository = (*LedgerRepository)(nil)
)
