package lobby

import "time"

// BanPolicy traduce la cantidad de strikes de un jugador en duración de ban.
// 0 = sin ban. Se mantiene separada de la máquina de estados.
type BanPolicy interface {
	BanDuration(strikes int) time.Duration
}

type BanPolicyFunc func(strikes int) time.Duration

func (f BanPolicyFunc) BanDuration(strikes int) time.Duration { return f(strikes) }

// EscalatingBans: a partir de Threshold strikes, Base y se duplica con cada
// strike extra, con tope Max.
type EscalatingBans struct {
	Threshold int
	Base      time.Duration
	Max       time.Duration
}

func DefaultBanPolicy() EscalatingBans {
	return EscalatingBans{Threshold: 3, Base: 30 * time.Minute, Max: 7 * 24 * time.Hour}
}

func (p EscalatingBans) BanDuration(strikes int) time.Duration {
	if p.Threshold <= 0 || strikes < p.Threshold || p.Base <= 0 {
		return 0
	}
	d := p.Base
	for i := p.Threshold; i < strikes; i++ {
		d *= 2
		if p.Max > 0 && d >= p.Max {
			return p.Max
		}
	}
	if p.Max > 0 && d > p.Max {
		return p.Max
	}
	return d
}
