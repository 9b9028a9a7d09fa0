package order

// Order is the parsed purchase-order document handed over by the parsing
// front-end. The engine treats it as an opaque validated contract.
type Order struct {
	PONumber         string      `json:"po_number"`
	Customer         string      `json:"customer"`
	PODate           string      `json:"po_date"`
	ShipDate         string      `json:"ship_date"`
	Destination      string      `json:"destination"`
	DestinationCN    string      `json:"destination_cn"`
	FromPerson       string      `json:"from_person"`
	CustomerPOHeader string      `json:"customer_po_header"`
	TrackingCode     string      `json:"tracking_code"`
	PackagingInfo    string      `json:"packaging_info"`
	Remark           string      `json:"remark"`
	IsCancel         bool        `json:"is_cancel"`
	Lines            []OrderLine `json:"lines"`
}

type OrderLine struct {
	LineNo     string  `json:"line_no"`
	SKU        string  `json:"sku"`
	ItemCode   string  `json:"item_code"`
	SkuSpec    string  `json:"sku_spec"`
	Name       string  `json:"name"`
	Barcode    string  `json:"barcode"`
	Delivery   string  `json:"delivery"`
	Price      float64 `json:"price"`
	Qty        int     `json:"qty"`
	OuterQty   int     `json:"outer_qty"`
	TotalUSD   float64 `json:"total_usd"`
	TotalCtns  int     `json:"total_ctns"`
	CustomerPO string  `json:"customer_po"`
}

// ScheduleRef identifies a located spreadsheet position. Count carries the
// match confidence so callers can rank competing references across files.
type ScheduleRef struct {
	File     string `json:"file"`
	FileName string `json:"fname"`
	Sheet    string `json:"sheet"`
	Ref      int    `json:"ref"`
	Count    int    `json:"cnt"`
	MaxCol   int    `json:"mcol"`
}

// Record is an existing schedule row found by the PO or SKU search. Data
// holds raw cell text keyed by column letter, dates normalized to ISO.
type Record struct {
	File     string            `json:"file"`
	FileName string            `json:"fname"`
	Sheet    string            `json:"sheet"`
	Row      int               `json:"row"`
	Data     map[string]string `json:"data"`
	HitCol   string            `json:"hit_col,omitempty"`
}

type ActionType string

const (
	ActionNew    ActionType = "new"
	ActionModify ActionType = "modify"
	ActionCancel ActionType = "cancel"
)

// Action is one reconciliation decision. Exactly one of the payload groups
// is set depending on Type; an Action always targets a single (file, sheet).
type Action struct {
	Type ActionType `json:"type"`

	// New
	Line     *OrderLine   `json:"line,omitempty"`
	Schedule *ScheduleRef `json:"schedule,omitempty"`

	// Modify / Cancel
	Record  *Record           `json:"record,omitempty"`
	Changes map[string]string `json:"changes,omitempty"`

	SKU    string `json:"sku"`
	Detail string `json:"detail"`
}

// Batch pairs one order's header with the reconciliation actions approved
// for it. The write path consumes batches grouped across orders.
type Batch struct {
	Header  Order    `json:"header"`
	Actions []Action `json:"actions"`
}

// TargetFile resolves the file bucket an action belongs to; empty for a New
// action with no resolved schedule reference.
func (a *Action) TargetFile() string {
	switch a.Type {
	case ActionNew:
		if a.Schedule != nil {
			return a.Schedule.File
		}
		return ""
	default:
		if a.Record != nil {
			return a.Record.File
		}
		return ""
	}
}
