package columns

// The header vocabulary only uses a small set of characters that differ
// between traditional and simplified Chinese; folding just those is enough
// for alias matching.
var tradToSimp = map[rune]rune{
	'貨': '货', '驗': '验', '國': '国', '備': '备', '註': '注',
	'辦': '办', '單': '单', '數': '数', '產': '产', '業': '业',
	'務': '务', '號': '号', '額': '额', '價': '价', '條': '条',
	'碼': '码', '總': '总', '內': '内', '類': '类', '據': '据',
	'戶': '户', '細': '细',
	'際': '际', '計': '计', '劃': '划', '種': '种', '組': '组',
	'廠': '厂', '區': '区',
}

// ToSimplified folds the traditional header characters to simplified.
func ToSimplified(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if simp, ok := tradToSimp[r]; ok {
			r = simp
		}
		out = append(out, r)
	}
	return string(out)
}
