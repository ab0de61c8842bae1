package bluesky

type xrpcError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type createSessionResponse struct {
	AccessJwt string `json:"accessJwt"`
	DID       string `json:"did"`
	Handle    string `json:"handle"`
}

type resolveHandleResponse struct {
	DID string `json:"did"`
}

type profileView struct {
	DID         string `json:"did"`
	Handle      string `json:"handle"`
	DisplayName string `json:"displayName,omitempty"`
}

type postRecord struct {
	Type      string    `json:"$type"`
	Text      string    `json:"text"`
	CreatedAt string    `json:"createdAt"`
	Reply     *replyRef `json:"reply,omitempty"`
	Facets    []facet   `json:"facets,omitempty"`
	Embed     *embed    `json:"embed,omitempty"`
	Langs     []string  `json:"langs,omitempty"`
}

// replyRef contains references to the parent and root of a reply chain.
type replyRef struct {
	Root   strongRef `json:"root"`
	Parent strongRef `json:"parent"`
}

// strongRef is a reference to a specific version of a record.
type strongRef struct {
	URI string `json:"uri"`
	CID string `json:"cid"`
}

type embed struct {
	Type     string    `json:"$type"`
	External *external `json:"external,omitempty"`
}

type external struct {
	URI         string `json:"uri"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

type postView struct {
	URI         string      `json:"uri"`
	CID         string      `json:"cid"`
	Author      profileView `json:"author"`
	Record      postRecord  `json:"record"`
	IndexedAt   string      `json:"indexedAt"`
	LikeCount   int         `json:"likeCount"`
	RepostCount int         `json:"repostCount"`
	ReplyCount  int         `json:"replyCount"`
	Viewer      *struct {
		Like   string `json:"like,omitempty"`
		Repost string `json:"repost,omitempty"`
	} `json:"viewer,omitempty"`
}

type feedViewPost struct {
	Post   postView        `json:"post"`
	Reason *feedViewReason `json:"reason,omitempty"`
}

type feedViewReason struct {
	Type string `json:"$type"`
}

type authorFeedResponse struct {
	Feed   []feedViewPost `json:"feed"`
	Cursor string         `json:"cursor,omitempty"`
}

type notificationView struct {
	URI           string      `json:"uri"`
	CID           string      `json:"cid"`
	Author        profileView `json:"author"`
	Reason        string      `json:"reason"`
	ReasonSubject string      `json:"reasonSubject,omitempty"`
	Record        struct {
		Text string `json:"text"`
	} `json:"record"`
	IndexedAt string `json:"indexedAt"`
}

type listNotificationsResponse struct {
	Notifications []notificationView `json:"notifications"`
	Cursor        string             `json:"cursor,omitempty"`
}

type postThreadResponse struct {
	Thread struct {
		Post postView `json:"post"`
	} `json:"thread"`
}

type createRecordRequest struct {
	Repo       string `json:"repo"`
	Collection string `json:"collection"`
	Record     any    `json:"record"`
}

type createRecordResponse struct {
	URI string `json:"uri"`
	CID string `json:"cid"`
}

type subjectRecord struct {
	Type      string    `json:"$type"`
	Subject   strongRef `json:"subject"`
	CreatedAt string    `json:"createdAt"`
}

type followRecord struct {
	Type      string `json:"$type"`
	Subject   string `json:"subject"`
	CreatedAt string `json:"createdAt"`
}
