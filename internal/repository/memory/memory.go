package memory

import (
	"obligation_manager/internal/repository"
)

var (
	_ repository.ObligationRepository  = (*ObligationRepository)(nil)
	_ repository.TransactionRepository = (*TransactionRepository)(nil)
)
