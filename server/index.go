package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *server) handleIndex() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(`<html>
<body>
	<h2>GET requests</h2>
	<ul>
	<li><a href="assets">GET /assets</a> - all assets with their spot price</li>
	<li>GET /assets/:symbol - one asset</li>
	<li>GET /users/me, /users/me/balances, /users/me/txs - your wallet</li>
	<li>GET /users/:address, /users/:address/balances, /users/:address/txs - any wallet</li>
	<li>GET /users/operators - the operator list (operators only)</li>
	<li><a href="metrics">GET /metrics</a> - prometheus metrics</li>
	</ul>
	<p/>
	The caller address is taken from the <code>`+s.opts.CallerHeader+`</code> header.
	Value attached to a request is passed in <code>X-Transfer-Amount</code>.
	Refunds and payouts come back in <code>X-Refund-Amount</code> and <code>X-Payout-Amount</code>.

	<h2>POST requests</h2>
	<h3>POST /assets/mint</h3>
	Operators create a new asset and pay the curve cost of its initial supply.
	<pre>
{
	"name": "Alpha",
	"symbol": "AAA",
	"initialSupply": 5,
	"basePrice": 100,
	"slope": "10"
}
	</pre>

	<h3>POST /assets/list, POST /assets/unlist</h3>
	The issuer reopens an asset with new curve parameters or stops its trading.
	<pre>
{
	"symbol": "AAA",
	"basePrice": 120,
	"slope": "0.5"
}
	</pre>

	<h3>POST /buy, POST /sell</h3>
	Buy pays from the attached value, sell pays out the curve return.
	<pre>
{
	"symbol": "AAA",
	"amount": 3
}
	</pre>

	<h3>POST /swap</h3>
	Receive <code>amount</code> units of toSymbol for as few units of fromSymbol as needed.
	<pre>
{
	"fromSymbol": "AAA",
	"toSymbol": "BBB",
	"amount": 1
}
	</pre>

	<h3>POST /users/operators, DELETE /users/operators</h3>
	<pre>
{
	"address": "tz1..."
}
	</pre>

	<h2>Web sockets</h2>
	<h3>GET /rates/stream</h3>
	Sends a spot price update whenever an asset changes, plus a periodic heartbeat of every listed asset.
	<pre>
{
	"symbol": "AAA",
	"supply": 5,
	"price": "150",
	"listed": true,
	"when": "2024-01-02T03:04:05Z"
}
	</pre>
	<h4>Note on price accuracy</h4>
	The stream is best effort. A trade always uses the supply at the time it executes, not the last price you received.
</body>
</html>`))
	}
}
