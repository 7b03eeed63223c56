package handler

import "github.com/queryman/queryman/internal/store"

// compoundBanishment escalates a new banishment against the account's
// history. An earlier final warning makes the new banishment permanent
// (zero days); a long record or an explicit final warning doubles the
// duration and flags the final warning, with a 30 day floor.
func compoundBanishment(status store.BanishmentStatus, days *int, finalWarning *bool) {
	if status.FinalWarning {
		*finalWarning = false
		*days = 0
		return
	}
	if status.TimesBanished > 5 || *finalWarning {
		*finalWarning = true
		if *days < 30 {
			*days = 30
		} else {
			*days *= 2
		}
	}
}
