package services

import "time"

const (
	KeyLedgerSnapshot = "game:%s:snapshot"
	KeyEventJournal   = "game:%s:events"
	KeyVaultBalance   = "vault:%s"
	KeyVaultRejecting = "vault:rejecting"
	KeyRateLimit      = "ratelimit:%s:%s"

	EventJournalSize = 1000

	DefaultRateLimitAttempts = 10 // Max 10 submissions per minute
	DefaultRateLimitRefunds  = 5  // Max 5 refund claims per minute

	vaultMaxRetries = 16

	journalTimeout = 2 * time.Second
	journalBuffer  = 1024
)
