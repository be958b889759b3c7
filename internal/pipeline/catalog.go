package pipeline

import "math/rand/v2"

// Professions is the fixed catalog a past life is drawn from.
var Professions = [...]string{
	"African scammer",
	"Homeless",
	"Opera Singer",
	"Oil Billionaire",
	"F1 Racer",
	"Club Bouncer",
	"Drug Addict",
	"YouTuber",
	"WWE Wrestler",
	"Whiskey Bar Owner",
	"President of India",
	"Pickpocketer",
	"Prisoner",
	"SEAL Team 6 Operator",
	"Car Salesman",
	"Viking",
	"Hunter",
	"Bear Wrestler",
	"Dictator",
	"Model",
	"Rockstar",
	"Rapper",
	"Pilot",
	"Burglar",
	"Rocker Biker",
}

// Age bounds, MinAge inclusive and MaxAge exclusive.
const (
	MinAge = 20
	MaxAge = 81
)

// Pick draws a profession and an age at death uniformly.
func Pick(r *rand.Rand) (profession string, age int) {
	profession = Professions[r.IntN(len(Professions))]
	age = MinAge + r.IntN(MaxAge-MinAge)
	return profession, age
}
