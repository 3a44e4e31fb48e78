package domain

// RewardOutcome es el resultado de liquidar un round cerrado.
type RewardOutcome struct {
	PayoutBase  uint64 // stake total del lado ganador (denominador)
	PayoutPool  uint64 // monto a repartir entre ganadores
	TreasuryCut uint64 // fee del protocolo, o todo el pool si hay push
	Outcome     Outcome
}

// CalculateRewards liquida un round cerrado con el fee dado en basis points.
//
//	Up gana:   base = UpStake,   cut = Total*fee/10000, pool = Total-cut
//	Down gana: base = DownStake, cut = Total*fee/10000, pool = Total-cut
//	Push:      base = 0, pool = 0, cut = Total (la casa se queda todo)
//
// Un round ya liquidado devuelve ErrRewardsAlreadyCalculated.
func CalculateRewards(r Round, feeBps uint32) (RewardOutcome, error) {
	if r.Settled {
		return RewardOutcome{}, ErrRewardsAlreadyCalculated.With("epoch %d", r.Epoch)
	}
	if !r.Locked() || !r.Closed() {
		return RewardOutcome{}, ErrRoundNotEnded.With("epoch %d has no close price", r.Epoch)
	}

	out := RewardOutcome{Outcome: r.Outcome()}
	switch out.Outcome {
	case OutcomeUp:
		out.PayoutBase = r.UpStake
	case OutcomeDown:
		out.PayoutBase = r.DownStake
	default:
		out.TreasuryCut = r.TotalStake
		return out, nil
	}

	cut, err := MulDiv(r.TotalStake, uint64(feeBps), BasisPoints)
	if err != nil {
		return RewardOutcome{}, err
	}
	out.TreasuryCut = cut
	out.PayoutPool = r.TotalStake - cut // cut <= total porque fee <= 100%
	return out, nil
}

// Apply escribe el resultado en el round y lo marca liquidado.
func (o RewardOutcome) Apply(r Round) Round {
	r.PayoutBase = o.PayoutBase
	r.PayoutPool = o.PayoutPool
	r.Settled = true
	return r
}

// Payout es la parte proporcional de un ganador: floor(stake*pool/base).
// La suma de todos los payouts nunca supera pool.
func Payout(stake, pool, base uint64) (uint64, error) {
	return MulDiv(stake, pool, base)
}
