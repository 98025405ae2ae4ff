package dataset

// defaultMentors are the mentor ids targeted when a test names none.
var defaultMentors = []string{
	"610dad8c16e879e3c3c6f711",
	"610dd3f616e879e3c3d88818",
	"610e854f16e879e3c32ea550",
	"610e860416e879e3c32efbd4",
	"6114286e16e879e3c3b97ad7",
	"61294b1854f809684401e4be",
	"61294d8a54f80968440320df",
	"612e636c54f80968446cb57c",
	"614394d406c21f1afa434db7",
	"614398e306c21f1afa459f56",
	"6144bc7d06c21f1afaeb59a4",
	"6153ae754be7d1a8ecc1e8f3",
	"615fdc4eae00075f6f163d2c",
	"6171b620c7ea4df5a68702db",
	"6172fdfac7ea4df5a660385d",
	"61796622c7ea4df5a61febd1",
	"61843084c7ea4df5a62c6f21",
	"618ebc9ac7ea4df5a6616712",
	"619c22d3836e4af90c8fc131",
	"61b20a97836e4af90c0df4b6",
	"61ba2ef59e733a8a0eb8c3dd",
	"61c2435f9e733a8a0e25ce1b",
	"620ab98bd2e9412da30d7c3e",
}

// DefaultMentors returns the built-in mentor id dataset.
func DefaultMentors() *Dataset {
	return &Dataset{name: "default mentors", items: append([]string(nil), defaultMentors...)}
}
