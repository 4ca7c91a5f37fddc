package wikipedia

// queryResponse is the formatversion=2 shape of action=query.
type queryResponse struct {
	Continue struct {
		PLContinue string `json:"plcontinue"`
		Continue   string `json:"continue"`
	} `json:"continue"`
	Query struct {
		Redirects []struct {
			From string `json:"from"`
			To   string `json:"to"`
		} `json:"redirects"`
		Pages []page `json:"pages"`
	} `json:"query"`
	Error *apiError `json:"error"`
}

type page struct {
	PageID  int    `json:"pageid"`
	Title   string `json:"title"`
	Missing bool   `json:"missing"`
	Invalid bool   `json:"invalid"`
	Extract string `json:"extract"`
	Links   []struct {
		NS    int    `json:"ns"`
		Title string `json:"title"`
	} `json:"links"`
}

type apiError struct {
	Code string `json:"code"`
	Info string `json:"info"`
}
