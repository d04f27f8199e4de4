/*
Package iso7816 speaks the command/response layer of ISO/IEC 7816-4 with a
smart card: it builds command APDUs, splits response APDUs into data and
status word, and drives a card through a Transmitter while resolving the
T=0 transport procedures on behalf of the caller.

# Exchanges

Every exchange is synchronous. The terminal sends a command APDU (header
plus optional body) and the card answers with optional data followed by a
two-byte status word:

  - 9000: normal processing.
  - 61XX: XX more bytes are waiting, fetched with GET RESPONSE.
  - 6CXX: wrong Le, the command must be re-sent with Le = XX.
  - anything else: a warning or an error.

Client.Send handles 61XX and 6CXX itself and returns the whole conversation
as a Trace. Trace.Response folds that conversation back into the single
logical answer.

# Example

	client := iso7816.NewClient(card)
	client.Timeout = 2 * time.Second

	trace, err := client.Send(ctx, iso7816.SelectByAID(iso7816.ClassInterindustry, aid))
	if err != nil {
	    var terr *iso7816.TransportError
	    if errors.As(err, &terr) {
	        // the reader or the card went away
	    }
	    return err
	}
	if resp := trace.Response(); resp.Status.IsSuccess() {
	    fmt.Printf("FCI: %X\n", resp.Data)
	}
*/
package iso7816
