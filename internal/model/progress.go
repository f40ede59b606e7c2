package model

// Progress is a derived read model describing how far archival has
// reached for one (symbol, exchange, time_frame) series in one storage
// tier: the oldest and newest close_time_ms on file. It is never
// persisted on its own; it is computed fresh from the tier's actual
// rows each time it's needed. MinCloseMs == MaxCloseMs == 0 means no
// data has been archived yet.
type Progress struct {
	Symbol     string
	Exchange   string
	TimeFrame  TimeFrame
	MinCloseMs int64
	MaxCloseMs int64
}

// HasData reports whether any bar has been archived for this series.
func (p Progress) HasData() bool {
	return p.MinCloseMs != 0 || p.MaxCloseMs != 0
}
