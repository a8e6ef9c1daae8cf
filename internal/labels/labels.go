// Package labels maps discovered device ids to the names shown to the operator.
//
// The table is fixed at build time; registering a new device name requires a
// code change.
package labels

var names = map[string]string{
	"ap":    "Ventilation system",
	"bac":   "Bedroom air conditioner",
	"bbl":   "Bedroom lights over the bed",
	"bbsw":  "Bedroom light switch over the bed",
	"br":    "Bedroom shades",
	"bwl":   "Bedroom lights by the wardrobe",
	"bwsw":  "Bedroom light switch by the wardrobe",
	"dac":   "Dining room air conditioner",
	"dr1":   "Dining room left shades",
	"dr2":   "Dining room center shades",
	"dr3":   "Dining room right shades",
	"drl":   "Dining room lights",
	"drs":   "Dining room light switch",
	"gbr":   "Guest bathroom temperature controller",
	"gbrfh": "Guest bathroom floor heating",
	"hb":    "Guest bathroom temperature valve",
	"k":     "Kitchen shades",
	"kfh":   "Kitchen floor heating",
	"kt":    "Kitchen temperature controller",
	"lac":   "Living room air conditioner",
	"ll":    "Living room lights",
	"lr":    "Living room shades",
	"ls":    "Living room light switch",
	"oac":   "Office air conditioner",
	"prx":   "Proxy",
}

// For returns the registered name for id, or id itself when none is registered.
func For(id string) string {
	if name, ok := names[id]; ok {
		return name
	}
	return id
}
