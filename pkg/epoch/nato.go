package epoch

// natoAlphabet indexes epoch names by epoch_number % 26. Index 0 is
// "Alpha", so epoch_number=1 names the first epoch "Bravo".
var natoAlphabet = [26]string{
	"Alpha", "Bravo", "Charlie", "Delta", "Echo", "Foxtrot", "Golf", "Hotel",
	"India", "Juliet", "Kilo", "Lima", "Mike", "November", "Oscar", "Papa",
	"Quebec", "Romeo", "Sierra", "Tango", "Uniform", "Victor", "Whiskey",
	"X-ray", "Yankee", "Zulu",
}

func epochName(epochNumber int) string {
	return natoAlphabet[epochNumber%26]
}
